package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/factnorm/pkg/kit"
	"github.com/hazyhaar/factnorm/pkg/normalize"
)

const namespace = "factnorm"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	matches         *prometheus.CounterVec
	realignFailures *prometheus.CounterVec
}

// NewMetrics creates and registers the service collectors, plus the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Endpoint calls by endpoint, transport and outcome.",
		}, []string{"endpoint", "transport", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Endpoint latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"endpoint"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Normalized matches by language and category.",
		}, []string{"language", "category"}),
		realignFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realign_failures_total",
			Help:      "Sentences left unchanged by realignment, by failure kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.matches, m.realignFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// instrument counts and times calls of the named endpoint.
func (m *Metrics) instrument(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)
			m.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(name, kit.GetTransport(ctx), statusLabel(err)).Inc()
			return resp, err
		}
	}
}

func (m *Metrics) observeMatches(lang string, matches ...normalize.Match) {
	for _, mt := range matches {
		if mt.Found() {
			m.matches.WithLabelValues(lang, mt.Category).Inc()
		}
	}
}

func (m *Metrics) observeRealignFailure(err error) {
	m.realignFailures.WithLabelValues(failureKind(err)).Inc()
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownLanguage), errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, normalize.ErrAmbiguousTag):
		return "ambiguous_tag"
	case errors.Is(err, normalize.ErrReconstruction):
		return "reconstruction"
	case errors.Is(err, normalize.ErrTransform):
		return "transform"
	default:
		return "other"
	}
}
