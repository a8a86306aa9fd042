package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/factnorm/pkg/kit"
	"github.com/hazyhaar/factnorm/pkg/normalize"
)

var (
	// ErrUnknownLanguage is returned when no rule table is loaded for the
	// requested language.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrInvalidRequest marks a malformed request.
	ErrInvalidRequest = errors.New("invalid request")
)

// maxTokens bounds the sentence size accepted by realign.
const maxTokens = 2000

// Shared request/response types used by both HTTP and MCP transports.

type normalizeOneReq struct {
	Language string
	Text     string
	Conflict normalize.Conflict
}

type normalizeOneResponse struct {
	Language string          `json:"language"`
	Found    bool            `json:"found"`
	Match    normalize.Match `json:"match"`
}

type normalizeManyReq struct {
	Language string
	Text     string
}

type normalizeManyResponse struct {
	Language string            `json:"language"`
	Matches  []normalize.Match `json:"matches"`
}

type realignReq struct {
	Language   string
	SentenceID string
	Tokens     []normalize.Token
}

// realignResponse always carries a token list; when realignment fails it
// is the input unchanged and Error says why.
type realignResponse struct {
	Language string            `json:"language"`
	Tokens   []normalize.Token `json:"tokens"`
	Merged   int               `json:"merged"`
	Error    string            `json:"error,omitempty"`
}

type languagesResponse struct {
	Languages []normalize.LanguageInfo `json:"languages"`
}

// Options configures a Service.
type Options struct {
	// DefaultLanguage is used when a request names no language.
	DefaultLanguage string
	Metrics         *Metrics // nil creates a private one
	Logger          *slog.Logger
}

// Service binds the rule registry to the transport-agnostic endpoints
// shared by HTTP and MCP.
type Service struct {
	reg     *normalize.Registry
	opts    Options
	metrics *Metrics
	logger  *slog.Logger

	normalizeOne  kit.Endpoint
	normalizeMany kit.Endpoint
	realign       kit.Endpoint
	listLanguages kit.Endpoint
}

// NewService builds the endpoints over reg.
func NewService(reg *normalize.Registry, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	s := &Service{reg: reg, opts: opts, metrics: opts.Metrics, logger: opts.Logger}

	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(s.logger, name), s.metrics.instrument(name))(ep)
	}
	s.normalizeOne = wrap("normalize_one", s.normalizeOneEndpoint)
	s.normalizeMany = wrap("normalize_many", s.normalizeManyEndpoint)
	s.realign = wrap("realign", s.realignEndpoint)
	s.listLanguages = wrap("list_languages", s.listLanguagesEndpoint)
	return s
}

// Metrics returns the service collectors.
func (s *Service) Metrics() *Metrics { return s.metrics }

func (s *Service) normalizer(lang string) (string, *normalize.Normalizer, error) {
	if lang == "" {
		lang = s.opts.DefaultLanguage
	}
	if lang == "" {
		return "", nil, fmt.Errorf("%w: language is required", ErrInvalidRequest)
	}
	n, ok := s.reg.Get(lang)
	if !ok {
		return lang, nil, fmt.Errorf("%w %q (loaded: %v)", ErrUnknownLanguage, lang, s.reg.Languages())
	}
	return lang, n, nil
}

func (s *Service) normalizeOneEndpoint(_ context.Context, request any) (any, error) {
	req := request.(*normalizeOneReq)
	lang, n, err := s.normalizer(req.Language)
	if err != nil {
		return nil, err
	}
	m, err := n.NormalizeOne(req.Text, req.Conflict)
	if err != nil {
		return nil, err
	}
	s.metrics.observeMatches(lang, m)
	return normalizeOneResponse{Language: lang, Found: m.Found(), Match: m}, nil
}

func (s *Service) normalizeManyEndpoint(_ context.Context, request any) (any, error) {
	req := request.(*normalizeManyReq)
	lang, n, err := s.normalizer(req.Language)
	if err != nil {
		return nil, err
	}
	matches, err := n.All(req.Text)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []normalize.Match{}
	}
	s.metrics.observeMatches(lang, matches...)
	return normalizeManyResponse{Language: lang, Matches: matches}, nil
}

func (s *Service) realignEndpoint(ctx context.Context, request any) (any, error) {
	req := request.(*realignReq)
	if len(req.Tokens) == 0 {
		return nil, fmt.Errorf("%w: tokens array is empty", ErrInvalidRequest)
	}
	if len(req.Tokens) > maxTokens {
		return nil, fmt.Errorf("%w: too many tokens (max %d, got %d)", ErrInvalidRequest, maxTokens, len(req.Tokens))
	}
	lang, n, err := s.normalizer(req.Language)
	if err != nil {
		return nil, err
	}
	id := req.SentenceID
	if id == "" {
		id = req.Tokens[0].SentenceID
	}

	out, merged, err := normalize.RealignCount(n, id, req.Tokens)
	resp := realignResponse{Language: lang, Tokens: out, Merged: merged}
	if err != nil {
		s.metrics.observeRealignFailure(err)
		// A failing transform is a broken rule, not bad input.
		if errors.Is(err, normalize.ErrTransform) {
			return nil, err
		}
		s.logger.Warn("realign failed, tokens unchanged",
			"sentence", id, "request_id", kit.GetRequestID(ctx), "error", err)
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *Service) listLanguagesEndpoint(_ context.Context, _ any) (any, error) {
	return languagesResponse{Languages: s.reg.Info()}, nil
}
