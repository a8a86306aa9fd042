package rulesource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hazyhaar/factnorm/pkg/rules"
)

// Fetcher downloads rule documents.
type Fetcher struct {
	Client   *http.Client
	Attempts int
	Backoff  time.Duration // doubled after each failed attempt
}

// NewFetcher returns a Fetcher with three attempts and a one second backoff.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:   &http.Client{Timeout: 2 * time.Minute},
		Attempts: 3,
		Backoff:  time.Second,
	}
}

// Fetch downloads the rule document for lang from url into dir. The
// download is parsed and compiled before it replaces the current document;
// an invalid document leaves dir untouched. A stale gob snapshot for lang
// is removed so the new document takes effect. It returns the hex SHA-256
// of the installed document.
func (f *Fetcher) Fetch(ctx context.Context, url, dir, lang string) (string, error) {
	dest := rules.Path(dir, lang)
	tmp := dest + ".download"
	defer os.Remove(tmp)

	sum, err := f.download(ctx, url, tmp)
	if err != nil {
		return "", err
	}

	spec, err := rules.LoadFile(tmp)
	if err != nil {
		return "", fmt.Errorf("validate %s: %w", url, err)
	}
	spec.Language = lang
	if _, err := rules.Compile(spec); err != nil {
		return "", fmt.Errorf("validate %s: %w", url, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("install rules %s: %w", lang, err)
	}
	if err := os.Remove(rules.SnapshotPath(dir, lang)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale snapshot: %w", err)
	}
	return sum, nil
}

// download fetches url to dest with retries and returns the content digest.
func (f *Fetcher) download(ctx context.Context, url, dest string) (string, error) {
	attempts := max(f.Attempts, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := f.Backoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			continue
		}

		out, err := os.Create(dest)
		if err != nil {
			resp.Body.Close()
			return "", fmt.Errorf("create file: %w", err)
		}
		h := sha256.New()
		_, copyErr := io.Copy(io.MultiWriter(out, h), resp.Body)
		resp.Body.Close()
		closeErr := out.Close()

		if copyErr != nil {
			lastErr = copyErr
			continue
		}
		if closeErr != nil {
			return "", closeErr
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	return "", fmt.Errorf("download %s failed after %d attempts: %w", url, attempts, lastErr)
}
