// Package rulesource tracks where each language's rule document comes from,
// fetches new versions and checks that sources stay reachable.
package rulesource

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Source is a row of the rule_sources table.
type Source struct {
	Language   string
	SourceURL  string
	SHA256     *string
	LastFetch  *int64
	LastCheck  *int64
	LastStatus *int
	LastError  *string
	UpdatedAt  int64
}

// DB manages the rule_sources SQLite table.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// rule_sources table exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open source db: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS rule_sources (
		language     TEXT PRIMARY KEY,
		source_url   TEXT NOT NULL,
		sha256       TEXT,
		last_fetch   INTEGER,
		last_check   INTEGER,
		last_status  INTEGER,
		last_error   TEXT,
		updated_at   INTEGER NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create rule_sources table: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Seed inserts a row per language. Existing rows are left untouched so
// that URLs changed with SetURL survive restarts.
func (s *DB) Seed(urls map[string]string) error {
	const q = `INSERT OR IGNORE INTO rule_sources (language, source_url, updated_at) VALUES (?, ?, ?)`
	now := time.Now().Unix()
	for lang, url := range urls {
		if _, err := s.db.Exec(q, lang, url, now); err != nil {
			return fmt.Errorf("seed %s: %w", lang, err)
		}
	}
	return nil
}

// GetURL returns the source URL for lang.
func (s *DB) GetURL(lang string) (string, error) {
	var url string
	err := s.db.QueryRow(`SELECT source_url FROM rule_sources WHERE language = ?`, lang).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("get url for %s: %w", lang, err)
	}
	return url, nil
}

// SetURL sets the source URL for lang, adding the language if needed.
func (s *DB) SetURL(lang, url string) error {
	_, err := s.db.Exec(`INSERT INTO rule_sources (language, source_url, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(language) DO UPDATE SET source_url = excluded.source_url, updated_at = excluded.updated_at`,
		lang, url, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set url for %s: %w", lang, err)
	}
	return nil
}

// RecordFetch stores the digest of a successfully installed document.
func (s *DB) RecordFetch(lang, sha string) error {
	res, err := s.db.Exec(`UPDATE rule_sources SET sha256 = ?, last_fetch = ? WHERE language = ?`,
		sha, time.Now().Unix(), lang)
	if err != nil {
		return fmt.Errorf("record fetch for %s: %w", lang, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("language %s not found in rule_sources", lang)
	}
	return nil
}

// UpdateCheck persists the result of an availability check.
func (s *DB) UpdateCheck(lang string, status int, checkErr string) error {
	var errPtr *string
	if checkErr != "" {
		errPtr = &checkErr
	}
	_, err := s.db.Exec(
		`UPDATE rule_sources SET last_check = ?, last_status = ?, last_error = ? WHERE language = ?`,
		time.Now().Unix(), status, errPtr, lang,
	)
	if err != nil {
		return fmt.Errorf("update check for %s: %w", lang, err)
	}
	return nil
}

// List returns all sources ordered by language.
func (s *DB) List() ([]Source, error) {
	rows, err := s.db.Query(`SELECT language, source_url, sha256, last_fetch, last_check,
		last_status, last_error, updated_at
		FROM rule_sources ORDER BY language`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.Language, &src.SourceURL, &src.SHA256, &src.LastFetch, &src.LastCheck,
			&src.LastStatus, &src.LastError, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
