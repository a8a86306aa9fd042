package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/factnorm/pkg/rules"
)

const dateRules = `
__meta_vars__:
  day: ([0-3]?\d)
  month: (january|february|march|april|may|june|july|august|september|october|november|december)
  months: january|february|march|april|may|june|july|august|september|october|november|december
  year: (\d{4})
__meta_funcs__:
  - "month_number(name) = index(split(months, '|'), name) + 1"
Duration:
  - 'from {year} to {year}': "{'start': int(match.group(1)), 'end': int(match.group(2))}"
Time:
  - '\b{day} {month} {year}\b': "{'day': int(match.group(1)), 'month': month_number(match.group(2)), 'year': int(match.group(3))}"
  - '\b{year}\b': "{'year': int(match.group(1))}"
`

func newNormalizer(t *testing.T, doc string) *Normalizer {
	t.Helper()
	spec, err := rules.Parse([]byte(doc))
	require.NoError(t, err)
	n, err := New(spec)
	require.NoError(t, err)
	return n
}

func TestNormalizeOneYear(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__: {}
__meta_funcs__: []
Year:
  - '(\d{4})': "{'year': int(match.group(1))}"
`)
	m, err := n.NormalizeOne("born in 1920 in Rome", ConflictFirst)
	require.NoError(t, err)
	assert.True(t, m.Found())
	assert.Equal(t, 8, m.Start)
	assert.Equal(t, 12, m.End)
	assert.Equal(t, "Year", m.Category)
	assert.Equal(t, "1920", m.Text)
	assert.Equal(t, map[string]any{"year": int64(1920)}, m.Result)
}

func TestNormalizeOneNoMatch(t *testing.T) {
	n := newNormalizer(t, dateRules)
	m, err := n.NormalizeOne("no numbers here", ConflictLongest)
	require.NoError(t, err)
	assert.False(t, m.Found())
	assert.Equal(t, NoMatch, m)
	assert.Equal(t, -1, m.Start)
	assert.Equal(t, -1, m.End)
	assert.Empty(t, m.Category)
	assert.Nil(t, m.Result)
}

func TestNormalizeOneConflictPolicies(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__:
  year: (\d{4})
  month: (march)
__meta_funcs__: []
Year:
  - '{year}': "'year'"
Date:
  - '(\d+) {month} {year}': "'date'"
Digits:
  - '(\d\d\d\d)': "'digits'"
`)
	text := "12 March 1920"

	m, err := n.NormalizeOne(text, ConflictFirst)
	require.NoError(t, err)
	assert.Equal(t, "year", m.Result)
	assert.Equal(t, "1920", m.Text)

	m, err = n.NormalizeOne(text, ConflictLongest)
	require.NoError(t, err)
	assert.Equal(t, "date", m.Result)
	assert.Equal(t, 0, m.Start)
	assert.Equal(t, 13, m.End)
	assert.Equal(t, "12 March 1920", m.Text)

	// Year and Digits tie at four characters; the earlier rule wins.
	m, err = n.NormalizeOne(text, ConflictShortest)
	require.NoError(t, err)
	assert.Equal(t, "year", m.Result)

	m, err = n.NormalizeOne("1920", ConflictLongest)
	require.NoError(t, err)
	assert.Equal(t, "Year", m.Category)
}

func TestNormalizeOneFirstMatchesManualScan(t *testing.T) {
	n := newNormalizer(t, dateRules)
	for _, text := range []string{
		"from 1920 to 1925",
		"on 3 May 1921 it rained",
		"around 1850",
		"nothing",
	} {
		got, err := n.NormalizeOne(text, ConflictFirst)
		require.NoError(t, err)

		want := NoMatch
	scan:
		for _, cat := range n.table.Categories {
			for _, r := range cat.Rules {
				if loc := r.Pattern.FindStringSubmatchIndex(foldCase(text)); loc != nil {
					want, err = n.apply(r, text, foldCase(text), loc)
					require.NoError(t, err)
					break scan
				}
			}
		}
		assert.Equal(t, want, got, text)
	}
}

func TestNormalizeOneDateTransform(t *testing.T) {
	n := newNormalizer(t, dateRules)
	m, err := n.NormalizeOne("He was born on 12 MARCH 1920.", ConflictFirst)
	require.NoError(t, err)
	assert.Equal(t, "Time", m.Category)
	assert.Equal(t, "12 MARCH 1920", m.Text)
	assert.Equal(t, map[string]any{"day": int64(12), "month": int64(3), "year": int64(1920)}, m.Result)
}

func TestNormalizeManyCursor(t *testing.T) {
	n := newNormalizer(t, dateRules)

	got, err := n.All("from 1920 to 1925, then 1930")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Match{Start: 0, End: 17, Category: "Duration", Text: "from 1920 to 1925",
		Result: map[string]any{"start": int64(1920), "end": int64(1925)}}, got[0])
	assert.Equal(t, Match{Start: 24, End: 28, Category: "Time", Text: "1930",
		Result: map[string]any{"year": int64(1930)}}, got[1])

	// Text before a claimed span is never revisited by later rules.
	got, err = n.All("in 1910, from 1920 to 1925")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Duration", got[0].Category)
}

func TestNormalizeManySpansDoNotOverlap(t *testing.T) {
	n := newNormalizer(t, dateRules)
	text := "between 1 May 1900 and 2 June 1901, from 1910 to 1912 and in 1930 or 1931"

	got, err := n.All(text)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Start, got[i-1].End, "match %d overlaps previous", i)
	}
	for _, m := range got {
		assert.Equal(t, text[m.Start:m.End], m.Text)
	}
}

func TestNormalizeManyMultipleMatchesPerRule(t *testing.T) {
	n := newNormalizer(t, dateRules)
	got, err := n.All("1920 and 1930")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, 9, got[1].Start)
}

func TestNormalizeManyStopsEarly(t *testing.T) {
	n := newNormalizer(t, dateRules)
	count := 0
	for range n.NormalizeMany("1920 1930 1940") {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestMatchObject(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__: {}
__meta_funcs__: []
Probe:
  - '(?P<y>\d{4})(x)?': "[match.start(), match.end(), match.span(1), match.group('y'), match.groups(), match.groups('-'), match.string, match.group(0, 1), match.groupdict()]"
`)
	m, err := n.NormalizeOne("ABC 1920", ConflictFirst)
	require.NoError(t, err)
	assert.Equal(t, []any{
		int64(4), int64(8),
		[]any{int64(4), int64(8)},
		"1920",
		[]any{"1920", nil},
		[]any{"1920", "-"},
		"abc 1920",
		[]any{"1920", "1920"},
		map[string]any{"y": "1920"},
	}, m.Result)
}

func TestMatchObjectOffsetsAreAbsolute(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__: {}
__meta_funcs__: []
First:
  - 'aaa': "match.end()"
Second:
  - '(\d+)': "match.span(1)"
`)
	got, err := n.All("aaa 42")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Result)
	assert.Equal(t, 4, got[1].Start)
	assert.Equal(t, []any{int64(4), int64(6)}, got[1].Result)
}

func TestTransformSeesFoldedText(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__: {}
__meta_funcs__: []
Month:
  - '(march)': "match.group(1)"
`)
	m, err := n.NormalizeOne("MARCH 1920", ConflictFirst)
	require.NoError(t, err)
	assert.Equal(t, "march", m.Result)
	assert.Equal(t, "MARCH", m.Text)
}

func TestTransformErrors(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__: {}
__meta_funcs__: []
Year:
  - '(\d{4})': "int(match.group(1)) // 0"
`)
	_, err := n.NormalizeOne("in 1920", ConflictFirst)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransform)
	var te *TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Year", te.Category)
	assert.Equal(t, "1920", te.Text)

	var errs, matches int
	for _, err := range n.NormalizeMany("1920 1930") {
		if err != nil {
			errs++
			continue
		}
		matches++
	}
	assert.Equal(t, 1, errs)
	assert.Equal(t, 0, matches)

	_, err = n.All("1920")
	assert.ErrorIs(t, err, ErrTransform)
}

func TestUnknownGroup(t *testing.T) {
	n := newNormalizer(t, `
__meta_vars__: {}
__meta_funcs__: []
Year:
  - '(\d{4})': "match.group('missing')"
`)
	_, err := n.NormalizeOne("1920", ConflictFirst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no such group "missing"`)
}

func TestCompilingTwiceIsDeterministic(t *testing.T) {
	a := newNormalizer(t, dateRules)
	b := newNormalizer(t, dateRules)
	text := "from 1920 to 1925, born 3 May 1921, died 1990"

	ma, err := a.All(text)
	require.NoError(t, err)
	mb, err := b.All(text)
	require.NoError(t, err)
	assert.Equal(t, ma, mb)
}

func TestParseConflict(t *testing.T) {
	for in, want := range map[string]Conflict{
		"":         ConflictFirst,
		"first":    ConflictFirst,
		"Longest":  ConflictLongest,
		"shortest": ConflictShortest,
	} {
		got, err := ParseConflict(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseConflict("greedy")
	assert.Error(t, err)
	assert.Equal(t, "longest", ConflictLongest.String())
}

func TestFoldCasePreservesLength(t *testing.T) {
	for _, s := range []string{"MARCH 1920", "ÉTÉ 1920", "İstanbul 1453", "ẞ", "\xffABC"} {
		got := foldCase(s)
		assert.Len(t, got, len(s), s)
	}
	assert.Equal(t, "été 1920", foldCase("ÉTÉ 1920"))
	assert.Equal(t, "\xffabc", foldCase("\xffABC"))
}
