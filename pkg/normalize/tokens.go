package normalize

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const (
	// Placeholder fills the index column of merged tokens.
	Placeholder = "-"
	// EntityMarker flags a merged numeric or temporal token.
	EntityMarker = "ENT"
	// NoTag is the IOB outside tag.
	NoTag = "O"

	minColumns = 7
)

// Token is one row of a tagged sentence: sentence id, token index, surface,
// entity marker, lemma, optional extra columns, POS or frame tag, IOB tag.
type Token struct {
	SentenceID string   `json:"sentence_id"`
	Index      string   `json:"index"`
	Surface    string   `json:"surface"`
	Entity     string   `json:"entity"`
	Lemma      string   `json:"lemma"`
	Extra      []string `json:"extra,omitempty"`
	POS        string   `json:"pos"`
	Tag        string   `json:"tag"`
}

// ParseTokenRow builds a Token from its columns.
func ParseTokenRow(cols []string) (Token, error) {
	if len(cols) < minColumns {
		return Token{}, fmt.Errorf("token row has %d columns, want at least %d", len(cols), minColumns)
	}
	n := len(cols)
	t := Token{
		SentenceID: cols[0],
		Index:      cols[1],
		Surface:    cols[2],
		Entity:     cols[3],
		Lemma:      cols[4],
		POS:        cols[n-2],
		Tag:        cols[n-1],
	}
	if n > minColumns {
		t.Extra = append([]string(nil), cols[5:n-2]...)
	}
	return t, nil
}

// Row returns the token's columns in file order.
func (t Token) Row() []string {
	row := make([]string, 0, minColumns+len(t.Extra))
	row = append(row, t.SentenceID, t.Index, t.Surface, t.Entity, t.Lemma)
	row = append(row, t.Extra...)
	return append(row, t.POS, t.Tag)
}

// Sentence joins token surfaces with single spaces.
func Sentence(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Surface)
	}
	return b.String()
}

// ReadTokens reads tab-separated token rows and groups consecutive rows
// sharing a sentence id. Blank lines are skipped. A non-UTF-8 charset name
// (for example "iso-8859-1") transcodes the input first.
func ReadTokens(r io.Reader, charset string) ([][]Token, error) {
	if charset != "" && !isUTF8(charset) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", charset, err)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	var (
		sentences [][]Token
		current   []Token
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		tok, err := ParseTokenRow(strings.Split(text, "\t"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(current) > 0 && current[0].SentenceID != tok.SentenceID {
			sentences = append(sentences, current)
			current = nil
		}
		current = append(current, tok)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if len(current) > 0 {
		sentences = append(sentences, current)
	}
	return sentences, nil
}

// WriteTokens writes tokens as tab-separated rows.
func WriteTokens(w io.Writer, tokens []Token) error {
	bw := bufio.NewWriter(w)
	for _, t := range tokens {
		if _, err := bw.WriteString(strings.Join(t.Row(), "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func isUTF8(enc string) bool {
	e := strings.ToLower(strings.ReplaceAll(enc, "-", ""))
	return e == "utf8" || e == ""
}
