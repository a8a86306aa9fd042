package normalize

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/factnorm/pkg/rules"
)

const italianRules = `
__meta_vars__:
  year: (\d{4})
__meta_funcs__: []
Time:
  - 'nel {year}': "{'year': int(match.group(1))}"
`

func setupRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(rules.Path(dir, "en"), []byte(dateRules), 0o644))
	require.NoError(t, os.WriteFile(rules.Path(dir, "it"), []byte(italianRules), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not rules"), 0o644))

	reg := NewRegistry(dir, nil)
	require.NoError(t, reg.Load())
	return reg, dir
}

func TestRegistryLoad(t *testing.T) {
	reg, _ := setupRegistry(t)

	assert.Equal(t, []string{"en", "it"}, reg.Languages())
	assert.Equal(t, 4, reg.RuleCount())

	it, ok := reg.Get("it")
	require.True(t, ok)
	assert.Equal(t, "it", it.Language())
	m, err := it.NormalizeOne("nato nel 1920", ConflictFirst)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"year": int64(1920)}, m.Result)

	_, ok = reg.Get("fr")
	assert.False(t, ok)
}

func TestRegistryInfo(t *testing.T) {
	reg, _ := setupRegistry(t)
	info := reg.Info()
	require.Len(t, info, 2)
	assert.Equal(t, "en", info[0].Language)
	assert.Equal(t, []string{"Duration", "Time"}, info[0].Categories)
	assert.Equal(t, 3, info[0].Rules)
	assert.Contains(t, info[0].Functions, "month_number")
	assert.Equal(t, "it", info[1].Language)
}

func TestRegistryFailedReloadKeepsPrevious(t *testing.T) {
	reg, dir := setupRegistry(t)
	require.NoError(t, os.WriteFile(rules.Path(dir, "it"), []byte("Time: []\n"), 0o644))

	err := reg.Reload()
	assert.ErrorIs(t, err, rules.ErrConfiguration)
	assert.Equal(t, []string{"en", "it"}, reg.Languages())

	err = reg.ReloadLanguage("it")
	assert.ErrorIs(t, err, rules.ErrConfiguration)
	_, ok := reg.Get("it")
	assert.True(t, ok)
}

func TestRegistryReloadLanguage(t *testing.T) {
	reg, dir := setupRegistry(t)
	require.NoError(t, os.WriteFile(rules.Path(dir, "fr"), []byte(`
__meta_vars__: {}
__meta_funcs__: []
Time:
  - 'en (\d{4})': "int(match.group(1))"
`), 0o644))

	require.NoError(t, reg.ReloadLanguage("fr"))
	assert.Equal(t, []string{"en", "fr", "it"}, reg.Languages())
}

func TestRegistryReloadAfterDocumentEdit(t *testing.T) {
	reg, dir := setupRegistry(t)
	spec, err := rules.LoadFile(rules.Path(dir, "it"))
	require.NoError(t, err)
	require.NoError(t, rules.SaveSnapshot(spec, rules.SnapshotPath(dir, "it")))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(rules.SnapshotPath(dir, "it"), old, old))

	updated := italianRules + `Duration:
  - 'dal {year} al {year}': "[int(match.group(1)), int(match.group(2))]"
`
	require.NoError(t, os.WriteFile(rules.Path(dir, "it"), []byte(updated), 0o644))

	require.NoError(t, reg.ReloadLanguage("it"))
	n, ok := reg.Get("it")
	require.True(t, ok)
	assert.Equal(t, []string{"Time", "Duration"}, n.Categories())
}

func TestRegistryLoadMissingDir(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, reg.Load())
}

func TestRegistryWatch(t *testing.T) {
	reg, dir := setupRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var reloaded []string
	done := make(chan error, 1)
	go func() {
		done <- reg.Watch(ctx, func(lang string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				reloaded = append(reloaded, lang)
			}
		})
	}()

	updated := italianRules + `Duration:
  - 'dal {year} al {year}': "[int(match.group(1)), int(match.group(2))]"
`
	require.Eventually(t, func() bool {
		// Rewrite until the watcher is registered and picks the change up.
		_ = os.WriteFile(rules.Path(dir, "it"), []byte(updated), 0o644)
		n, _ := reg.Get("it")
		mu.Lock()
		defer mu.Unlock()
		return len(n.Categories()) == 2 && len(reloaded) > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
