package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/factnorm/pkg/expr"
)

// Rule is a compiled pattern with its transform.
type Rule struct {
	Category  string
	Template  string
	Pattern   *regexp.Regexp
	Transform *expr.Expr
}

// CompiledCategory holds the compiled rules of one category in declaration order.
type CompiledCategory struct {
	Name  string
	Rules []*Rule
}

// Table is the executable form of a Spec: compiled categories plus the
// environment transforms are evaluated in. A Table is read-only.
type Table struct {
	Language   string
	Categories []CompiledCategory
	Env        *expr.Env
}

// RuleCount returns the number of compiled rules.
func (t *Table) RuleCount() int {
	n := 0
	for _, c := range t.Categories {
		n += len(c.Rules)
	}
	return n
}

// Compile builds the executable table for spec. Meta-function definitions
// and transforms are parsed here so a malformed document fails at load time.
func Compile(spec *Spec) (*Table, error) {
	funcs := make([]*expr.Func, 0, len(spec.MetaFuncs))
	for _, src := range spec.MetaFuncs {
		f, err := expr.ParseFunc(src)
		if err != nil {
			return nil, &ConfigError{Source: spec.Language, Msg: "meta-function", Err: err}
		}
		funcs = append(funcs, f)
	}
	env, err := expr.NewEnv(spec.MetaVars, funcs)
	if err != nil {
		return nil, &ConfigError{Source: spec.Language, Msg: "meta namespace", Err: err}
	}

	t := &Table{
		Language:   spec.Language,
		Categories: make([]CompiledCategory, 0, len(spec.Categories)),
		Env:        env,
	}
	for _, cat := range spec.Categories {
		cc := CompiledCategory{Name: cat.Name, Rules: make([]*Rule, 0, len(cat.Rules))}
		for _, rs := range cat.Rules {
			r, err := compileRule(cat.Name, rs, spec.MetaVars)
			if err != nil {
				return nil, err
			}
			cc.Rules = append(cc.Rules, r)
		}
		t.Categories = append(t.Categories, cc)
	}
	return t, nil
}

func compileRule(category string, rs RuleSpec, vars map[string]string) (*Rule, error) {
	pattern, err := ExpandTemplate(rs.Pattern, vars)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("category %s: pattern %q", category, rs.Pattern), Err: err}
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, &PatternError{Category: category, Template: rs.Pattern, Pattern: pattern, Err: err}
	}
	transform, err := expr.Compile(rs.Transform)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("category %s: transform for %q", category, rs.Pattern), Err: err}
	}
	return &Rule{Category: category, Template: rs.Pattern, Pattern: re, Transform: transform}, nil
}

// ExpandTemplate turns a pattern template into a regular expression. Every
// literal space first becomes `\s*`; then `{name}` placeholders are replaced
// by meta-variable values, so the values themselves are never rewritten.
// `{{` and `}}` stand for literal braces, and brace groups that are not
// identifiers (such as the quantifier in `\d{4}`) are kept as they are.
func ExpandTemplate(template string, vars map[string]string) (string, error) {
	s := strings.ReplaceAll(template, " ", `\s*`)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			b.WriteByte('{')
			i += 2
		case strings.HasPrefix(s[i:], "}}"):
			b.WriteByte('}')
			i += 2
		case s[i] == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				b.WriteByte('{')
				i++
				continue
			}
			name := s[i+1 : i+1+end]
			if !isIdentifier(name) {
				b.WriteByte('{')
				i++
				continue
			}
			val, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("unknown meta-variable {%s}", name)
			}
			b.WriteString(val)
			i += end + 2
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), nil
}
