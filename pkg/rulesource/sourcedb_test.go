package rulesource

import (
	"os"
	"path/filepath"
	"testing"
)

func tempDB(t *testing.T) *DB {
	t.Helper()
	sdb, err := Open(filepath.Join(t.TempDir(), "sources.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sdb.Close() })
	return sdb
}

func TestOpen_CreatesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	sdb, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sdb.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}
	sources, err := sdb.List()
	if err != nil {
		t.Fatalf("List on empty db: %v", err)
	}
	if len(sources) != 0 {
		t.Fatalf("expected 0 sources, got %d", len(sources))
	}
}

func TestSeedKeepsExistingURLs(t *testing.T) {
	sdb := tempDB(t)

	if err := sdb.Seed(map[string]string{"en": "https://example.com/en.yml", "it": "https://example.com/it.yml"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := sdb.SetURL("en", "https://mirror.example.com/en.yml"); err != nil {
		t.Fatalf("SetURL: %v", err)
	}
	if err := sdb.Seed(map[string]string{"en": "https://example.com/en.yml"}); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	url, err := sdb.GetURL("en")
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if url != "https://mirror.example.com/en.yml" {
		t.Fatalf("seed overwrote manual URL: got %s", url)
	}
}

func TestSetURL_AddsLanguage(t *testing.T) {
	sdb := tempDB(t)
	if err := sdb.SetURL("fr", "https://example.com/fr.yml"); err != nil {
		t.Fatalf("SetURL: %v", err)
	}
	url, err := sdb.GetURL("fr")
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if url != "https://example.com/fr.yml" {
		t.Errorf("url = %s", url)
	}
}

func TestGetURL_Unknown(t *testing.T) {
	sdb := tempDB(t)
	if _, err := sdb.GetURL("xx"); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestRecordFetchAndList(t *testing.T) {
	sdb := tempDB(t)
	if err := sdb.Seed(map[string]string{"en": "https://example.com/en.yml", "it": "https://example.com/it.yml"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := sdb.RecordFetch("en", "abc123"); err != nil {
		t.Fatalf("RecordFetch: %v", err)
	}
	if err := sdb.RecordFetch("de", "abc123"); err == nil {
		t.Fatal("RecordFetch for unknown language should fail")
	}
	if err := sdb.UpdateCheck("it", 404, "not found"); err != nil {
		t.Fatalf("UpdateCheck: %v", err)
	}

	sources, err := sdb.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	en, it := sources[0], sources[1]
	if en.Language != "en" || it.Language != "it" {
		t.Fatalf("unexpected order: %s, %s", en.Language, it.Language)
	}
	if en.SHA256 == nil || *en.SHA256 != "abc123" || en.LastFetch == nil {
		t.Errorf("en fetch not recorded: %+v", en)
	}
	if it.LastStatus == nil || *it.LastStatus != 404 {
		t.Errorf("it status not recorded: %+v", it)
	}
	if it.LastError == nil || *it.LastError != "not found" {
		t.Errorf("it error not recorded: %+v", it)
	}
	if it.SHA256 != nil {
		t.Errorf("it sha256 should be empty, got %s", *it.SHA256)
	}
}
