package statement

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Resolver looks up the knowledge base identifier for a label. property is
// a hint (the property the value will be attached to, or P1559 for a
// subject name). An unknown label yields "" and no error.
type Resolver interface {
	Resolve(ctx context.Context, property, label, lang string) (string, error)
}

// LabelResolver resolves labels from a fixed, case-insensitive table.
type LabelResolver map[string]string

// Resolve implements Resolver.
func (l LabelResolver) Resolve(_ context.Context, _, label, _ string) (string, error) {
	return l[strings.ToLower(strings.TrimSpace(label))], nil
}

// LoadLabels reads `label<TAB>id` lines into a LabelResolver.
func LoadLabels(r io.Reader) (LabelResolver, error) {
	labels := make(LabelResolver)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		label, id, ok := strings.Cut(text, "\t")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("labels line %d: want label<TAB>id", line)
		}
		labels[strings.ToLower(strings.TrimSpace(label))] = strings.TrimSpace(id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}
