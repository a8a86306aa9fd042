// Package rules loads per-language normalization rule documents and
// compiles them into ordered tables of case-insensitive patterns paired with
// transform expressions.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserved top-level keys of a rule document.
const (
	MetaVarsKey  = "__meta_vars__"
	MetaFuncsKey = "__meta_funcs__"
)

const (
	filePrefix  = "normalization_rules_"
	docExt      = ".yml"
	snapshotExt = ".gob"
)

// Spec is a parsed rule document. Category and rule order is the order of
// declaration in the document.
type Spec struct {
	Language   string
	MetaVars   map[string]string
	MetaFuncs  []string
	Categories []Category
}

// Category is a named, ordered group of rules.
type Category struct {
	Name  string
	Rules []RuleSpec
}

// RuleSpec pairs a pattern template with its transform expression source.
type RuleSpec struct {
	Pattern   string
	Transform string
}

// RuleCount returns the number of rules across all categories.
func (s *Spec) RuleCount() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Rules)
	}
	return n
}

// Path returns the rule document path for a language.
func Path(dir, lang string) string {
	return filepath.Join(dir, filePrefix+lang+docExt)
}

// SnapshotPath returns the gob snapshot path for a language.
func SnapshotPath(dir, lang string) string {
	return filepath.Join(dir, filePrefix+lang+snapshotExt)
}

// LanguageOf extracts the language from a rule document or snapshot file
// name, reporting false for unrelated files.
func LanguageOf(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, filePrefix) {
		return "", false
	}
	ext := filepath.Ext(base)
	if ext != docExt && ext != ".yaml" && ext != snapshotExt {
		return "", false
	}
	lang := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), ext)
	if lang == "" || strings.ContainsAny(lang, ". ") {
		return "", false
	}
	return lang, true
}

// Load reads the rules for lang from dir. A gob snapshot takes priority over
// the YAML document unless the document was modified after it.
func Load(dir, lang string) (*Spec, error) {
	snap := SnapshotPath(dir, lang)
	doc := Path(dir, lang)
	fresh, err := snapshotFresh(snap, doc)
	if err != nil {
		return nil, err
	}
	if fresh {
		spec, err := LoadSnapshot(snap)
		if err != nil {
			return nil, err
		}
		spec.Language = lang
		return spec, nil
	}

	spec, err := LoadFile(doc)
	if err != nil {
		return nil, err
	}
	spec.Language = lang
	return spec, nil
}

// snapshotFresh reports whether snap exists and is not older than doc.
func snapshotFresh(snap, doc string) (bool, error) {
	si, err := os.Stat(snap)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &ConfigError{Source: snap, Msg: "stat snapshot", Err: err}
	}
	di, err := os.Stat(doc)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, &ConfigError{Source: doc, Msg: "stat document", Err: err}
	}
	if si.ModTime().Before(di.ModTime()) {
		slog.Warn("rules snapshot older than document, loading document", "snapshot", snap, "document", doc)
		return false, nil
	}
	return true, nil
}

// LoadFile reads and parses a rule document.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Msg: "read rule document", Err: err}
	}
	spec, err := Parse(data)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) && ce.Source == "" {
			ce.Source = path
		}
		return nil, err
	}
	if lang, ok := LanguageOf(path); ok {
		spec.Language = lang
	}
	return spec, nil
}

// Parse decodes a rule document. Both reserved keys must be present.
func Parse(data []byte) (*Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Msg: "parse rule document", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ConfigError{Msg: "empty rule document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Line: root.Line, Msg: "rule document must be a mapping"}
	}

	spec := &Spec{}
	var haveVars, haveFuncs bool
	seen := make(map[string]bool)

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, &ConfigError{Line: key.Line, Msg: "top-level keys must be scalars"}
		}
		name := key.Value
		if seen[name] {
			return nil, &ConfigError{Line: key.Line, Msg: fmt.Sprintf("duplicate key %q", name)}
		}
		seen[name] = true

		switch name {
		case MetaVarsKey:
			vars, err := parseMetaVars(val)
			if err != nil {
				return nil, err
			}
			spec.MetaVars = vars
			haveVars = true
		case MetaFuncsKey:
			funcs, err := parseMetaFuncs(val)
			if err != nil {
				return nil, err
			}
			spec.MetaFuncs = funcs
			haveFuncs = true
		default:
			cat, err := parseCategory(name, val)
			if err != nil {
				return nil, err
			}
			spec.Categories = append(spec.Categories, cat)
		}
	}

	if !haveVars {
		return nil, &ConfigError{Msg: fmt.Sprintf("missing reserved key %s", MetaVarsKey)}
	}
	if !haveFuncs {
		return nil, &ConfigError{Msg: fmt.Sprintf("missing reserved key %s", MetaFuncsKey)}
	}
	return spec, nil
}

func parseMetaVars(n *yaml.Node) (map[string]string, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &ConfigError{Line: n.Line, Msg: MetaVarsKey + " must be a mapping"}
	}
	vars := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode || v.ShortTag() != "!!str" {
			return nil, &ConfigError{Line: k.Line, Msg: fmt.Sprintf("meta-variable %q must map to a string", k.Value)}
		}
		if !isIdentifier(k.Value) {
			return nil, &ConfigError{Line: k.Line, Msg: fmt.Sprintf("meta-variable name %q is not an identifier", k.Value)}
		}
		if _, dup := vars[k.Value]; dup {
			return nil, &ConfigError{Line: k.Line, Msg: fmt.Sprintf("duplicate meta-variable %q", k.Value)}
		}
		vars[k.Value] = v.Value
	}
	return vars, nil
}

func parseMetaFuncs(n *yaml.Node) ([]string, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, &ConfigError{Line: n.Line, Msg: MetaFuncsKey + " must be a sequence"}
	}
	funcs := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, &ConfigError{Line: item.Line, Msg: "meta-function definitions must be strings"}
		}
		funcs = append(funcs, strings.TrimSpace(item.Value))
	}
	return funcs, nil
}

func parseCategory(name string, n *yaml.Node) (Category, error) {
	cat := Category{Name: name}
	if n.Kind != yaml.SequenceNode {
		return cat, &ConfigError{Line: n.Line, Msg: fmt.Sprintf("category %s must be a sequence of pattern: transform entries", name)}
	}
	for _, item := range n.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return cat, &ConfigError{Line: item.Line, Msg: fmt.Sprintf("category %s: each entry must be a single pattern: transform mapping", name)}
		}
		k, v := item.Content[0], item.Content[1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return cat, &ConfigError{Line: item.Line, Msg: fmt.Sprintf("category %s: pattern and transform must be scalars", name)}
		}
		cat.Rules = append(cat.Rules, RuleSpec{Pattern: k.Value, Transform: v.Value})
	}
	return cat, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
