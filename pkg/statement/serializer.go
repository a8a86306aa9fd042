package statement

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/factnorm/pkg/normalize"
)

// batchSize is the number of records serialized concurrently before their
// statements are written out in input order.
const batchSize = 256

// Config configures a Serializer.
type Config struct {
	Language   string
	Normalizer *normalize.Normalizer // nil disables numeric normalization
	Properties map[string]string     // FE -> property, see LoadFrameData
	URLs       map[string]string     // source URL -> subject, see MapURLToEntity
	SubjectFEs []string              // defaults to DefaultSubjectFEs
	Resolver   Resolver              // nil leaves only URL-mapped subjects
	Workers    int                   // defaults to 1
	Logger     *slog.Logger
}

// Serializer converts classified records into statements.
type Serializer struct {
	cfg        Config
	subjectFEs map[string]bool
	logger     *slog.Logger
}

// NewSerializer builds a Serializer from cfg.
func NewSerializer(cfg Config) *Serializer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	fes := cfg.SubjectFEs
	if fes == nil {
		fes = DefaultSubjectFEs
	}
	s := &Serializer{cfg: cfg, subjectFEs: make(map[string]bool, len(fes)), logger: cfg.Logger}
	for _, fe := range fes {
		s.subjectFEs[fe] = true
	}
	return s
}

// Subject returns the subject of rec's statements: the single subject FE
// if there is exactly one, else the entity mapped to the record URL, else
// the record name. It returns "" when nothing resolves.
func (s *Serializer) Subject(ctx context.Context, rec Record) (string, error) {
	var candidates []FE
	for _, fe := range rec.FEs {
		if s.subjectFEs[fe.FE] {
			candidates = append(candidates, fe)
		}
	}
	if len(candidates) == 1 {
		return s.resolve(ctx, PropNativeLabel, candidates[0].Chunk)
	}
	if id, ok := s.cfg.URLs[rec.URL]; ok {
		return id, nil
	}
	if rec.Name != "" {
		return s.resolve(ctx, PropNativeLabel, rec.Name)
	}
	return "", nil
}

func (s *Serializer) resolve(ctx context.Context, property, label string) (string, error) {
	if s.cfg.Resolver == nil {
		return "", nil
	}
	id, err := s.cfg.Resolver.Resolve(ctx, property, label, s.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", label, err)
	}
	return id, nil
}

// Statements serializes one record. Records without a URL or a resolvable
// subject produce nothing. Transform errors from the normalizer are
// returned, since they point at a broken rule.
func (s *Serializer) Statements(ctx context.Context, rec Record) ([]Statement, error) {
	if rec.URL == "" {
		s.logger.Warn("skipping record without url")
		return nil, nil
	}
	subject, err := s.Subject(ctx, rec)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		s.logger.Warn("could not resolve subject, skipping sentence", "name", rec.Name, "url", rec.URL)
		return nil, nil
	}

	fes := rec.FEs
	if s.cfg.Normalizer != nil && !hasNumericFE(fes) {
		fes = append([]FE(nil), fes...)
		for m, err := range s.cfg.Normalizer.NormalizeMany(rec.Sentence) {
			if err != nil {
				return nil, err
			}
			fes = append(fes, FE{FE: m.Category, Chunk: m.Text, Literal: m.Result})
		}
	}

	var out []Statement
	for _, fe := range fes {
		switch fe.FE {
		case FETime, FEDuration:
			out = append(out, s.numeric(subject, fe, rec.URL)...)
			continue
		}

		prop, ok := s.cfg.Properties[fe.FE]
		if !ok {
			s.logger.Debug("unknown fe type, skipping", "fe", fe.FE)
			continue
		}
		value, err := s.resolve(ctx, prop, fe.Chunk)
		if err != nil {
			return nil, err
		}
		if value == "" {
			s.logger.Debug("unresolved value, skipping", "fe", fe.FE, "chunk", fe.Chunk)
			continue
		}
		out = append(out, Statement{Subject: subject, Property: prop, Value: value, URL: rec.URL})
	}
	return out, nil
}

// numeric serializes a Time or Duration FE. Literals that are not valid
// dates are logged and skipped.
func (s *Serializer) numeric(subject string, fe FE, url string) []Statement {
	add := func(out []Statement, prop string, lit any) []Statement {
		date, err := formatLiteral(lit)
		if err != nil {
			s.logger.Warn("skipping numeric fe", "fe", fe.FE, "chunk", fe.Chunk, "error", err)
			return out
		}
		return append(out, Statement{Subject: subject, Property: prop, Value: date, URL: url})
	}

	var out []Statement
	if fe.FE == FETime {
		return add(out, PropPointInTime, fe.Literal)
	}
	lit, ok := fe.Literal.(map[string]any)
	if !ok {
		s.logger.Warn("skipping duration without start or end", "chunk", fe.Chunk)
		return nil
	}
	if start, ok := lit["start"]; ok {
		out = add(out, PropStartTime, start)
	}
	if end, ok := lit["end"]; ok {
		out = add(out, PropEndTime, end)
	}
	return out
}

func hasNumericFE(fes []FE) bool {
	for _, fe := range fes {
		if fe.FE == FETime || fe.FE == FEDuration {
			return true
		}
	}
	return false
}

// Run reads JSON-lines records from r and writes one statement per line to
// w, returning the number of statements written. Undecodable lines are
// logged and skipped.
func (s *Serializer) Run(ctx context.Context, r io.Reader, w io.Writer) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	bw := bufio.NewWriter(w)

	count := 0
	line := 0
	batch := make([]Record, 0, batchSize)
	flush := func() error {
		results, err := s.serializeBatch(ctx, batch)
		if err != nil {
			return err
		}
		for _, stmts := range results {
			for _, st := range stmts {
				if _, err := bw.WriteString(st.String() + "\n"); err != nil {
					return fmt.Errorf("write statement: %w", err)
				}
				count++
				if count%1000 == 0 {
					s.logger.Info("produced statements", "count", count)
				}
			}
		}
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping undecodable record", "line", line, "error", err)
			continue
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return count, fmt.Errorf("read records: %w", err)
	}
	if err := flush(); err != nil {
		return count, err
	}
	if err := bw.Flush(); err != nil {
		return count, fmt.Errorf("flush statements: %w", err)
	}
	s.logger.Info("serialization done", "statements", count)
	return count, nil
}

func (s *Serializer) serializeBatch(ctx context.Context, batch []Record) ([][]Statement, error) {
	results := make([][]Statement, len(batch))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, rec := range batch {
		g.Go(func() error {
			stmts, err := s.Statements(ctx, rec)
			if err != nil {
				return err
			}
			results[i] = stmts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
