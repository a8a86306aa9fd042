package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
__meta_vars__:
  month: (january|february|march)
  year: (\d{4})
__meta_funcs__:
  - "month_number(name) = index(['january', 'february', 'march'], lower(name)) + 1"
Time:
  - '{month} {year}': "{'month': month_number(match.group(1)), 'year': int(match.group(2))}"
  - '{year}': "{'year': int(match.group(1))}"
Duration:
  - 'from {year} to {year}': "{'start': {'year': int(match.group(1))}, 'end': {'year': int(match.group(2))}}"
`

func writeDoc(t *testing.T, dir, lang, doc string) string {
	t.Helper()
	path := Path(dir, lang)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	spec, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	require.Len(t, spec.Categories, 2)
	assert.Equal(t, "Time", spec.Categories[0].Name)
	assert.Equal(t, "Duration", spec.Categories[1].Name)
	require.Len(t, spec.Categories[0].Rules, 2)
	assert.Equal(t, "{month} {year}", spec.Categories[0].Rules[0].Pattern)
	assert.Equal(t, "{year}", spec.Categories[0].Rules[1].Pattern)
	assert.Equal(t, `(\d{4})`, spec.MetaVars["year"])
	assert.Len(t, spec.MetaFuncs, 1)
	assert.Equal(t, 3, spec.RuleCount())
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing meta vars", "__meta_funcs__: []\nTime: []\n", "missing reserved key __meta_vars__"},
		{"missing meta funcs", "__meta_vars__: {}\nTime: []\n", "missing reserved key __meta_funcs__"},
		{"not a mapping", "- a\n- b\n", "must be a mapping"},
		{"empty", "", "empty rule document"},
		{"duplicate category", "__meta_vars__: {}\n__meta_funcs__: []\nTime: []\nTime: []\n", `duplicate key "Time"`},
		{"non string meta var", "__meta_vars__: {n: 4}\n__meta_funcs__: []\n", `meta-variable "n" must map to a string`},
		{"bad meta var name", "__meta_vars__: {'two words': x}\n__meta_funcs__: []\n", "not an identifier"},
		{"meta funcs mapping", "__meta_vars__: {}\n__meta_funcs__: {a: b}\n", "must be a sequence"},
		{"category not a list", "__meta_vars__: {}\n__meta_funcs__: []\nTime: x\n", "category Time must be a sequence"},
		{"two pairs per entry", "__meta_vars__: {}\n__meta_funcs__: []\nTime:\n  - {a: '1', b: '2'}\n", "single pattern: transform mapping"},
		{"invalid yaml", "__meta_vars__: [\n", "parse rule document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseReportsLine(t *testing.T) {
	_, err := Parse([]byte("__meta_vars__: {}\n__meta_funcs__: []\nTime:\n  - 7\n"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.Line)
}

func TestExpandTemplate(t *testing.T) {
	vars := map[string]string{"year": `(\d{4})`, "month": "(march|may)"}
	tests := []struct {
		template string
		want     string
	}{
		{"{year}", `(\d{4})`},
		{"{month} {year}", `(march|may)\s*(\d{4})`},
		{`\d{4}`, `\d{4}`},
		{`\d{2,4}`, `\d{2,4}`},
		{"{{year}}", "{year}"},
		{"a{", "a{"},
		{"from  {year}", `from\s*\s*(\d{4})`},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			got, err := ExpandTemplate(tt.template, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandTemplateDoesNotRewriteValues(t *testing.T) {
	got, err := ExpandTemplate("{sep}", map[string]string{"sep": "a b"})
	require.NoError(t, err)
	assert.Equal(t, "a b", got)
}

func TestExpandTemplateUnknownVariable(t *testing.T) {
	_, err := ExpandTemplate("{decade}", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decade")
}

func TestCompile(t *testing.T) {
	spec, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	table, err := Compile(spec)
	require.NoError(t, err)
	assert.Equal(t, 3, table.RuleCount())
	assert.Equal(t, `(?i)(january|february|march)\s*(\d{4})`, table.Categories[0].Rules[0].Pattern.String())
	assert.True(t, table.Categories[0].Rules[0].Pattern.MatchString("MARCH 1920"))
	assert.Equal(t, "Duration", table.Categories[1].Rules[0].Category)
	assert.Contains(t, table.Env.Functions(), "month_number")
}

func TestCompileErrors(t *testing.T) {
	base := Spec{MetaVars: map[string]string{"year": `(\d{4})`}}

	t.Run("bad regex", func(t *testing.T) {
		s := base
		s.Categories = []Category{{Name: "Time", Rules: []RuleSpec{{Pattern: "({year}", Transform: "1"}}}}
		_, err := Compile(&s)
		var pe *PatternError
		require.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, ErrPatternCompile)
		assert.Equal(t, "Time", pe.Category)
		assert.Equal(t, `((\d{4})`, pe.Pattern)
	})

	t.Run("unknown meta variable", func(t *testing.T) {
		s := base
		s.Categories = []Category{{Name: "Time", Rules: []RuleSpec{{Pattern: "{month}", Transform: "1"}}}}
		_, err := Compile(&s)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("bad transform", func(t *testing.T) {
		s := base
		s.Categories = []Category{{Name: "Time", Rules: []RuleSpec{{Pattern: "{year}", Transform: "int(("}}}}
		_, err := Compile(&s)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("bad meta function", func(t *testing.T) {
		s := base
		s.MetaFuncs = []string{"not a function"}
		_, err := Compile(&s)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("function shadows meta variable", func(t *testing.T) {
		s := base
		s.MetaFuncs = []string{"year() = 1"}
		_, err := Compile(&s)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestLoadFileSetsLanguage(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "en", sampleDoc)

	spec, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "en", spec.Language)
}

func TestLoadFileErrorCarriesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "it", "__meta_vars__: {}\n")

	_, err := LoadFile(path)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, path, ce.Source)

	_, err = LoadFile(filepath.Join(dir, "missing.yml"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSnapshotTakesPriority(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "en", sampleDoc)

	spec, err := Load(dir, "en")
	require.NoError(t, err)
	assert.Len(t, spec.Categories, 2)

	// A snapshot with a single category shadows the document.
	snap := &Spec{
		MetaVars:   map[string]string{"year": `(\d{4})`},
		Categories: []Category{{Name: "Year", Rules: []RuleSpec{{Pattern: "{year}", Transform: "int(match.group(1))"}}}},
	}
	require.NoError(t, SaveSnapshot(snap, SnapshotPath(dir, "en")))

	spec, err = Load(dir, "en")
	require.NoError(t, err)
	assert.Equal(t, "en", spec.Language)
	require.Len(t, spec.Categories, 1)
	assert.Equal(t, "Year", spec.Categories[0].Name)
	assert.Equal(t, snap.MetaVars, spec.MetaVars)

	_, err = os.Stat(SnapshotPath(dir, "en") + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSaveSnapshotRefusesInvalidSpec(t *testing.T) {
	dir := t.TempDir()
	bad := &Spec{Categories: []Category{{Name: "Time", Rules: []RuleSpec{{Pattern: "(", Transform: "1"}}}}}

	err := SaveSnapshot(bad, SnapshotPath(dir, "en"))
	assert.ErrorIs(t, err, ErrPatternCompile)
	_, statErr := os.Stat(SnapshotPath(dir, "en"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestLanguageOf(t *testing.T) {
	tests := []struct {
		path string
		lang string
		ok   bool
	}{
		{"/etc/rules/normalization_rules_en.yml", "en", true},
		{"normalization_rules_it.yaml", "it", true},
		{"normalization_rules_en.gob", "en", true},
		{"normalization_rules_.yml", "", false},
		{"normalization_rules_en.yml.tmp", "", false},
		{"rules_en.yml", "", false},
		{"normalization_rules_en.json", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			lang, ok := LanguageOf(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.lang, lang)
		})
	}
}

func TestStaleSnapshotIgnored(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "en", sampleDoc)
	snap := &Spec{
		MetaVars:   map[string]string{"year": `(\d{4})`},
		Categories: []Category{{Name: "Year", Rules: []RuleSpec{{Pattern: "{year}", Transform: "int(match.group(1))"}}}},
	}
	require.NoError(t, SaveSnapshot(snap, SnapshotPath(dir, "en")))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(SnapshotPath(dir, "en"), old, old))

	spec, err := Load(dir, "en")
	require.NoError(t, err)
	require.Len(t, spec.Categories, 2)
	assert.Equal(t, "Time", spec.Categories[0].Name)
}

func TestSnapshotWithoutDocument(t *testing.T) {
	dir := t.TempDir()
	snap := &Spec{
		MetaVars:   map[string]string{"year": `(\d{4})`},
		Categories: []Category{{Name: "Year", Rules: []RuleSpec{{Pattern: "{year}", Transform: "int(match.group(1))"}}}},
	}
	require.NoError(t, SaveSnapshot(snap, SnapshotPath(dir, "it")))

	spec, err := Load(dir, "it")
	require.NoError(t, err)
	assert.Equal(t, "it", spec.Language)
	assert.Equal(t, "Year", spec.Categories[0].Name)
}
