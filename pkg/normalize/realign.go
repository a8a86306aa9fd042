package normalize

import (
	"fmt"
	"slices"
	"sort"
)

// Realign collapses every token-aligned match in the sentence into a single
// token carrying the covered tokens' tag. Matches that start or end inside
// a token are skipped. On error the input tokens are returned unchanged.
func Realign(n *Normalizer, sentenceID string, tokens []Token) ([]Token, error) {
	out, _, err := RealignCount(n, sentenceID, tokens)
	return out, err
}

// RealignCount is Realign that also reports how many matches were merged.
func RealignCount(n *Normalizer, sentenceID string, tokens []Token) ([]Token, int, error) {
	sentence := Sentence(tokens)
	current := slices.Clone(tokens)
	merges := 0

	for m, err := range n.NormalizeMany(sentence) {
		if err != nil {
			return tokens, 0, err
		}
		i, ok := tokenAt(current, m.Start)
		if !ok {
			continue
		}
		j, ok := tokensSpanning(current, i, m.Text)
		if !ok {
			continue
		}
		tag, conflicting := resolveTag(current[i:j])
		if conflicting != nil {
			return tokens, 0, &AmbiguousTagError{
				SentenceID: sentenceID,
				Start:      m.Start,
				End:        m.End,
				Text:       m.Text,
				Tags:       conflicting,
			}
		}

		first := current[i]
		merged := Token{
			SentenceID: sentenceID,
			Index:      Placeholder,
			Surface:    m.Text,
			Entity:     EntityMarker,
			Lemma:      m.Text,
			POS:        first.POS,
			Tag:        tag,
		}
		if len(first.Extra) > 0 {
			merged.Extra = make([]string, len(first.Extra))
			for k := range merged.Extra {
				merged.Extra[k] = Placeholder
			}
		}
		current = slices.Replace(current, i, j, merged)
		merges++
	}

	if got := Sentence(current); got != sentence {
		return tokens, 0, fmt.Errorf("sentence %s: %w: got %q, want %q", sentenceID, ErrReconstruction, got, sentence)
	}
	return current, merges, nil
}

// tokenAt returns the index of the token starting at byte offset start.
func tokenAt(tokens []Token, start int) (int, bool) {
	offset := 0
	for i, t := range tokens {
		if offset == start {
			return i, true
		}
		if offset > start {
			break
		}
		offset += len(t.Surface) + 1
	}
	return 0, false
}

// tokensSpanning returns j such that tokens[i:j] joined by spaces equals text.
func tokensSpanning(tokens []Token, i int, text string) (int, bool) {
	for j := i + 1; j <= len(tokens); j++ {
		joined := Sentence(tokens[i:j])
		if joined == text {
			return j, true
		}
		if len(joined) >= len(text) {
			break
		}
	}
	return 0, false
}

// resolveTag returns the single non-O tag among tokens, or NoTag. When the
// tokens carry more than one, the sorted distinct tags are returned instead.
func resolveTag(tokens []Token) (string, []string) {
	seen := make(map[string]bool)
	for _, t := range tokens {
		if t.Tag != NoTag && t.Tag != "" {
			seen[t.Tag] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	switch len(tags) {
	case 0:
		return NoTag, nil
	case 1:
		return tags[0], nil
	}
	sort.Strings(tags)
	return "", tags
}
