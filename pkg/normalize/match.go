package normalize

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hazyhaar/factnorm/pkg/expr"
)

// Match is one rule application: the span [Start, End) in the input text,
// the owning category, the matched text and the transform result.
type Match struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Category string `json:"category,omitempty"`
	Text     string `json:"text,omitempty"`
	Result   any    `json:"result"`
}

// NoMatch is returned by NormalizeOne when no rule matches.
var NoMatch = Match{Start: -1, End: -1}

// Found reports whether m is a real match.
func (m Match) Found() bool { return m.Start >= 0 }

// matchObject exposes a regexp match to transform expressions as `match`.
// Offsets are absolute in the searched text.
type matchObject struct {
	re   *regexp.Regexp
	text string
	loc  []int
}

func (m *matchObject) TypeName() string { return "match" }

func (m *matchObject) Attr(name string) (any, error) {
	if name == "string" {
		return m.text, nil
	}
	return nil, fmt.Errorf("match has no attribute %q", name)
}

func (m *matchObject) CallMethod(name string, args []any) (any, error) {
	switch name {
	case "group":
		if len(args) == 0 {
			return m.group(0), nil
		}
		if len(args) == 1 {
			g, err := m.groupIndex(args[0])
			if err != nil {
				return nil, err
			}
			return m.group(g), nil
		}
		out := make([]any, len(args))
		for i, a := range args {
			g, err := m.groupIndex(a)
			if err != nil {
				return nil, err
			}
			out[i] = m.group(g)
		}
		return out, nil

	case "groups":
		if len(args) > 1 {
			return nil, errors.New("groups() takes at most 1 argument")
		}
		var def any
		if len(args) == 1 {
			def = args[0]
		}
		n := len(m.loc)/2 - 1
		out := make([]any, n)
		for g := 1; g <= n; g++ {
			if v := m.group(g); v != nil {
				out[g-1] = v
			} else {
				out[g-1] = def
			}
		}
		return out, nil

	case "groupdict":
		out := make(map[string]any)
		for g, name := range m.re.SubexpNames() {
			if name != "" {
				out[name] = m.group(g)
			}
		}
		return out, nil

	case "start", "end", "span":
		g := 0
		if len(args) > 1 {
			return nil, fmt.Errorf("%s() takes at most 1 argument", name)
		}
		if len(args) == 1 {
			var err error
			if g, err = m.groupIndex(args[0]); err != nil {
				return nil, err
			}
		}
		start, end := int64(m.loc[2*g]), int64(m.loc[2*g+1])
		switch name {
		case "start":
			return start, nil
		case "end":
			return end, nil
		}
		return []any{start, end}, nil
	}
	return nil, fmt.Errorf("match has no method %q", name)
}

// group returns the text of group g, or nil when the group did not take part.
func (m *matchObject) group(g int) any {
	s, e := m.loc[2*g], m.loc[2*g+1]
	if s < 0 {
		return nil
	}
	return m.text[s:e]
}

func (m *matchObject) groupIndex(ref any) (int, error) {
	switch v := ref.(type) {
	case int64:
		if v < 0 || int(v) >= len(m.loc)/2 {
			return 0, fmt.Errorf("no such group %d", v)
		}
		return int(v), nil
	case string:
		if i := m.re.SubexpIndex(v); i >= 0 {
			return i, nil
		}
		return 0, fmt.Errorf("no such group %q", v)
	}
	return 0, fmt.Errorf("group reference must be int or str, not %s", expr.TypeName(ref))
}
