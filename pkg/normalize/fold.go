package normalize

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// lowerSameWidth lowercases a rune only when its lowercase form encodes to
// the same number of bytes, so offsets in the folded text index the input.
var lowerSameWidth = runes.Map(func(r rune) rune {
	l := unicode.ToLower(r)
	if utf8.RuneLen(l) != utf8.RuneLen(r) {
		return r
	}
	return l
})

// foldCase lower-cases s without changing its byte length.
func foldCase(s string) string {
	if !utf8.ValidString(s) {
		return asciiLower(s)
	}
	out, _, err := transform.String(lowerSameWidth, s)
	if err != nil || len(out) != len(s) {
		return asciiLower(s)
	}
	return out
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
