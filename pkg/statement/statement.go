// Package statement turns classified sentences into QuickStatements lines,
// normalizing Time and Duration frame elements into dated statements.
package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Properties used for numeric frame elements.
const (
	PropPointInTime = "P585"
	PropStartTime   = "P580"
	PropEndTime     = "P582"
	PropNativeLabel = "P1559"
	PropSourceURL   = "S854"
)

// Frame element names with numeric values.
const (
	FETime     = "Time"
	FEDuration = "Duration"
)

// FE is one classified frame element of a sentence.
type FE struct {
	FE      string `json:"fe"`
	Chunk   string `json:"chunk"`
	Literal any    `json:"literal,omitempty"`
}

// Record is one classified sentence.
type Record struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Sentence string `json:"sentence"`
	FEs      []FE   `json:"fes"`
}

// Statement is a single subject-property-value claim with its source.
type Statement struct {
	Subject  string `json:"subject"`
	Property string `json:"property"`
	Value    string `json:"value"`
	URL      string `json:"url"`
}

// String renders the statement as a QuickStatements line.
func (s Statement) String() string {
	return s.Subject + "\t" + s.Property + "\t" + s.Value + "\t" + PropSourceURL + "\t\"" + s.URL + "\""
}

// FormatDate renders a date in the knowledge base time format. month and
// day may be zero, lowering the precision to month (10) or year (9).
func FormatDate(year, month, day int) string {
	sign := "+"
	if year < 0 {
		sign, year = "-", -year
	}
	precision := 11
	switch {
	case month == 0:
		precision, month, day = 9, 0, 0
	case day == 0:
		precision = 10
	}
	return fmt.Sprintf("%s%04d-%02d-%02dT00:00:00Z/%d", sign, year, month, day, precision)
}

var errNoYear = errors.New("date has no year")

// formatLiteral formats a transform result such as {'year': 1920, 'month': 3}.
func formatLiteral(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("date literal must be a mapping, got %T", v)
	}
	if _, ok := m["year"]; !ok {
		return "", errNoYear
	}
	var parts [3]int
	for i, key := range []string{"year", "month", "day"} {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		n, err := intValue(raw)
		if err != nil {
			return "", fmt.Errorf("date %s: %w", key, err)
		}
		parts[i] = n
	}
	if parts[1] < 0 || parts[1] > 12 || parts[2] < 0 || parts[2] > 31 {
		return "", fmt.Errorf("date out of range: %d-%d-%d", parts[0], parts[1], parts[2])
	}
	return FormatDate(parts[0], parts[1], parts[2]), nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}
