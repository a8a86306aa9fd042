package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/factnorm/pkg/rules"
)

// reloadDelay coalesces the burst of events an editor produces on save.
const reloadDelay = 150 * time.Millisecond

// Registry holds one Normalizer per language found in a rules directory.
type Registry struct {
	mu       sync.RWMutex
	norms    map[string]*Normalizer
	rulesDir string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry for dir.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		norms:    make(map[string]*Normalizer),
		rulesDir: dir,
		logger:   logger,
	}
}

// Dir returns the rules directory.
func (r *Registry) Dir() string { return r.rulesDir }

// Load scans the rules directory and compiles every language. If any
// language fails, the previously loaded set stays in place.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.rulesDir)
	if err != nil {
		return fmt.Errorf("read rules dir %s: %w", r.rulesDir, err)
	}

	langs := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if lang, ok := rules.LanguageOf(e.Name()); ok {
			langs[lang] = true
		}
	}

	next := make(map[string]*Normalizer, len(langs))
	for lang := range langs {
		n, err := Load(r.rulesDir, lang)
		if err != nil {
			return fmt.Errorf("load rules %s: %w", lang, err)
		}
		next[lang] = n
	}

	r.mu.Lock()
	r.norms = next
	r.mu.Unlock()
	return nil
}

// Reload reloads every language from disk.
func (r *Registry) Reload() error {
	return r.Load()
}

// ReloadLanguage recompiles one language. On failure the loaded
// normalizer for lang, if any, is kept.
func (r *Registry) ReloadLanguage(lang string) error {
	n, err := Load(r.rulesDir, lang)
	if err != nil {
		return fmt.Errorf("reload rules %s: %w", lang, err)
	}
	r.mu.Lock()
	r.norms[lang] = n
	r.mu.Unlock()
	return nil
}

// Get returns the normalizer for lang.
func (r *Registry) Get(lang string) (*Normalizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.norms[lang]
	return n, ok
}

// Languages returns the loaded languages, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.norms))
	for l := range r.norms {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// LanguageInfo is the public description of a loaded rule table.
type LanguageInfo struct {
	Language   string   `json:"language"`
	Categories []string `json:"categories"`
	Rules      int      `json:"rules"`
	Functions  []string `json:"functions"`
}

// Info describes every loaded language, sorted by language.
func (r *Registry) Info() []LanguageInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]LanguageInfo, 0, len(r.norms))
	for lang, n := range r.norms {
		infos = append(infos, LanguageInfo{
			Language:   lang,
			Categories: n.Categories(),
			Rules:      n.RuleCount(),
			Functions:  n.Functions(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Language < infos[j].Language })
	return infos
}

// RuleCount returns the number of rules across all languages.
func (r *Registry) RuleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, n := range r.norms {
		total += n.RuleCount()
	}
	return total
}

// Watch reloads a language whenever its rule document or snapshot changes,
// until ctx is done. onReload, if not nil, is called after each attempt.
func (r *Registry) Watch(ctx context.Context, onReload func(lang string, err error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(r.rulesDir); err != nil {
		return fmt.Errorf("watch %s: %w", r.rulesDir, err)
	}

	pending := make(map[string]*time.Timer)
	fire := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			lang, ok := rules.LanguageOf(ev.Name)
			if !ok {
				continue
			}
			if t, ok := pending[lang]; ok {
				t.Reset(reloadDelay)
				continue
			}
			pending[lang] = time.AfterFunc(reloadDelay, func() {
				select {
				case fire <- lang:
				case <-ctx.Done():
				}
			})

		case lang := <-fire:
			delete(pending, lang)
			err := r.ReloadLanguage(lang)
			if err != nil {
				r.logger.Error("rules reload failed", "lang", lang, "error", err)
			} else {
				r.logger.Info("rules reloaded", "lang", lang)
			}
			if onReload != nil {
				onReload(lang, err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("rules watcher error", "error", err)
		}
	}
}
