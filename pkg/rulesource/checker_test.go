package rulesource

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestCheckAll_Mixed(t *testing.T) {
	srv200 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv200.Close()

	srv404 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv404.Close()

	// Redirects are not followed and count as reachable.
	srv302 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://example.invalid/", http.StatusFound)
	}))
	defer srv302.Close()

	sdb := tempDB(t)
	if err := sdb.Seed(map[string]string{
		"en": srv200.URL,
		"it": srv404.URL,
		"fr": srv302.URL,
		"de": "http://127.0.0.1:1/unreachable",
	}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ok, failed := NewChecker(sdb, logger, time.Hour).CheckAll(context.Background())
	if ok != 2 || failed != 2 {
		t.Errorf("ok=%d failed=%d, want 2 and 2", ok, failed)
	}

	sources, err := sdb.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	status := make(map[string]int)
	for _, src := range sources {
		if src.LastStatus == nil {
			t.Fatalf("%s: status not recorded", src.Language)
		}
		status[src.Language] = *src.LastStatus
	}
	want := map[string]int{"en": 200, "it": 404, "fr": 302, "de": 0}
	for lang, code := range want {
		if status[lang] != code {
			t.Errorf("%s: status = %d, want %d", lang, status[lang], code)
		}
	}
	for _, src := range sources {
		if src.Language == "de" && (src.LastError == nil || *src.LastError == "") {
			t.Error("de: network error not recorded")
		}
	}
}

func TestChecker_StartStopsOnCancel(t *testing.T) {
	sdb := tempDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewChecker(sdb, logger, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
