package statement

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// DefaultSubjectFEs are the frame elements that can name a statement's
// subject.
var DefaultSubjectFEs = []string{
	"Agent", "Author", "Elected_person", "Entity", "Exhibitor", "Individual",
	"New_member", "Participant", "Player", "Producer", "Visitor",
}

type frameFE struct {
	FE string `json:"fe"`
	ID string `json:"id"`
}

type frame struct {
	CoreFEs  []frameFE `json:"core_fes"`
	ExtraFEs []frameFE `json:"extra_fes"`
}

// LoadFrameData reads the frame description file (lexical unit -> core and
// extra FEs) and returns the FE -> property mapping. FEs without a property
// id are dropped.
func LoadFrameData(r io.Reader, logger *slog.Logger) (map[string]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var frames map[string]frame
	if err := json.NewDecoder(r).Decode(&frames); err != nil {
		return nil, fmt.Errorf("decode frame data: %w", err)
	}

	// Sorted for a deterministic winner when two frames disagree.
	units := make([]string, 0, len(frames))
	for lu := range frames {
		units = append(units, lu)
	}
	sort.Strings(units)

	props := make(map[string]string)
	for _, lu := range units {
		f := frames[lu]
		for _, fe := range append(f.CoreFEs, f.ExtraFEs...) {
			if fe.ID == "" {
				logger.Warn("dropping FE without property", "fe", fe.FE, "lu", lu)
				continue
			}
			props[fe.FE] = fe.ID
		}
	}
	return props, nil
}

// MapURLToEntity reads QuickStatements produced from semi-structured data
// and maps each source URL to its subject. URLs seen with more than one
// subject are left out.
func MapURLToEntity(r io.Reader) (map[string]string, error) {
	urls := make(map[string]string)
	banned := make(map[string]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		subject := parts[0]
		url := strings.Trim(parts[len(parts)-1], `"`)
		if banned[url] {
			continue
		}
		if prev, ok := urls[url]; ok && prev != subject {
			delete(urls, url)
			banned[url] = true
			continue
		}
		urls[url] = subject
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read semi-structured statements: %w", err)
	}
	return urls, nil
}
