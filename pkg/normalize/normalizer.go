// Package normalize runs compiled rule tables over free text and realigns
// the resulting spans onto tagged token sequences.
package normalize

import (
	"fmt"
	"iter"
	"strings"

	"github.com/hazyhaar/factnorm/pkg/rules"
)

// Conflict selects how NormalizeOne picks among rules that all match.
type Conflict int

const (
	// ConflictFirst returns the first rule that matches, in category then
	// rule declaration order.
	ConflictFirst Conflict = iota
	// ConflictLongest returns the longest match; the earliest wins ties.
	ConflictLongest
	// ConflictShortest returns the shortest match; the earliest wins ties.
	ConflictShortest
)

func (c Conflict) String() string {
	switch c {
	case ConflictLongest:
		return "longest"
	case ConflictShortest:
		return "shortest"
	}
	return "first"
}

// ParseConflict parses a policy name. The empty string means first.
func ParseConflict(s string) (Conflict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return ConflictFirst, nil
	case "longest":
		return ConflictLongest, nil
	case "shortest":
		return ConflictShortest, nil
	}
	return ConflictFirst, fmt.Errorf("unknown conflict policy %q (want first, longest or shortest)", s)
}

// Normalizer is a compiled rule table for one language. It is immutable
// and safe for concurrent use.
type Normalizer struct {
	table *rules.Table
}

// New compiles spec. Malformed documents fail here, never at match time.
func New(spec *rules.Spec) (*Normalizer, error) {
	t, err := rules.Compile(spec)
	if err != nil {
		return nil, err
	}
	return &Normalizer{table: t}, nil
}

// Load reads and compiles the rules for lang from dir.
func Load(dir, lang string) (*Normalizer, error) {
	spec, err := rules.Load(dir, lang)
	if err != nil {
		return nil, err
	}
	return New(spec)
}

// Language returns the language the rules were loaded for.
func (n *Normalizer) Language() string { return n.table.Language }

// Categories returns category names in declaration order.
func (n *Normalizer) Categories() []string {
	names := make([]string, len(n.table.Categories))
	for i, c := range n.table.Categories {
		names[i] = c.Name
	}
	return names
}

// RuleCount returns the number of compiled rules.
func (n *Normalizer) RuleCount() int { return n.table.RuleCount() }

// Functions returns the names callable from transforms.
func (n *Normalizer) Functions() []string { return n.table.Env.Functions() }

// NormalizeOne returns the single best match in text under policy c, or
// NoMatch.
func (n *Normalizer) NormalizeOne(text string, c Conflict) (Match, error) {
	folded := foldCase(text)

	var best *rules.Rule
	var bestLoc []int
	for _, cat := range n.table.Categories {
		for _, r := range cat.Rules {
			loc := r.Pattern.FindStringSubmatchIndex(folded)
			if loc == nil {
				continue
			}
			if c == ConflictFirst {
				return n.apply(r, text, folded, loc)
			}
			size := loc[1] - loc[0]
			if best == nil ||
				(c == ConflictLongest && size > bestLoc[1]-bestLoc[0]) ||
				(c == ConflictShortest && size < bestLoc[1]-bestLoc[0]) {
				best, bestLoc = r, loc
			}
		}
	}
	if best == nil {
		return NoMatch, nil
	}
	return n.apply(best, text, folded, bestLoc)
}

// NormalizeMany yields every match in text. A cursor moves forward over the
// text: each rule only scans what earlier rules have not consumed, and after
// a rule the cursor advances to the furthest end among its matches. A
// transform error is yielded once and ends the sequence.
func (n *Normalizer) NormalizeMany(text string) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		folded := foldCase(text)
		cursor := 0
		for _, cat := range n.table.Categories {
			for _, r := range cat.Rules {
				furthest := 0
				for _, rel := range r.Pattern.FindAllStringSubmatchIndex(folded[cursor:], -1) {
					m, err := n.apply(r, text, folded, shift(rel, cursor))
					if err != nil {
						yield(NoMatch, err)
						return
					}
					if !yield(m, nil) {
						return
					}
					furthest = max(furthest, rel[1])
				}
				cursor += furthest
			}
		}
	}
}

// All collects NormalizeMany.
func (n *Normalizer) All(text string) ([]Match, error) {
	var out []Match
	for m, err := range n.NormalizeMany(text) {
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (n *Normalizer) apply(r *rules.Rule, text, folded string, loc []int) (Match, error) {
	obj := &matchObject{re: r.Pattern, text: folded, loc: loc}
	v, err := r.Transform.Eval(n.table.Env.WithMatch(obj))
	if err != nil {
		return NoMatch, &TransformError{
			Category: r.Category,
			Pattern:  r.Template,
			Text:     text[loc[0]:loc[1]],
			Err:      err,
		}
	}
	return Match{
		Start:    loc[0],
		End:      loc[1],
		Category: r.Category,
		Text:     text[loc[0]:loc[1]],
		Result:   v,
	}, nil
}

func shift(loc []int, by int) []int {
	out := make([]int, len(loc))
	for i, v := range loc {
		if v < 0 {
			out[i] = v
			continue
		}
		out[i] = v + by
	}
	return out
}
