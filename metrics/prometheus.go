// Package metrics provides Prometheus instrumentation for window limiters.
//
// A Collector observes every decision a Limiter makes and can wrap a counter
// store to time its round trips:
//
//	collector := metrics.NewCollector()
//	s := metrics.WrapStore(memory.New(), metrics.Memory, collector)
//	limiter, _ := windowlimit.New(
//	    windowlimit.WithStore(s),
//	    windowlimit.WithObserver(collector),
//	)
//
// Decision counts carry a "decision" label (allowed / denied / error).
// Store metrics are partitioned by backend name.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/store"
)

// Backend name constants for the backend label.
const (
	Memory = "memory"
	Redis  = "redis"
)

// Decision label values.
const (
	Allowed = "allowed"
	Denied  = "denied"
	Errored = "error"
)

// Collector holds Prometheus metric vectors for limiter instrumentation.
type Collector struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

type collectorConfig struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer
	buckets   []float64
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

// WithNamespace sets the Prometheus metric namespace (prefix).
func WithNamespace(ns string) CollectorOption {
	return func(c *collectorConfig) { c.namespace = ns }
}

// WithSubsystem sets the Prometheus metric subsystem.
func WithSubsystem(sub string) CollectorOption {
	return func(c *collectorConfig) { c.subsystem = sub }
}

// WithRegistry registers metrics with the given Registerer instead of
// prometheus.DefaultRegisterer.
func WithRegistry(r prometheus.Registerer) CollectorOption {
	return func(c *collectorConfig) { c.registry = r }
}

// WithBuckets sets custom histogram buckets for store latency.
func WithBuckets(b []float64) CollectorOption {
	return func(c *collectorConfig) { c.buckets = b }
}

var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

// NewCollector creates a Collector and registers its metrics.
//
// Metrics registered:
//   - {namespace}_decisions_total             counter   (decision)
//   - {namespace}_store_duration_seconds      histogram (backend)
//   - {namespace}_store_errors_total          counter   (backend)
//
// Default namespace is "ratelimit".
func NewCollector(opts ...CollectorOption) *Collector {
	cfg := &collectorConfig{
		namespace: "ratelimit",
		registry:  prometheus.DefaultRegisterer,
		buckets:   defaultBuckets,
	}
	for _, o := range opts {
		o(cfg)
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "decisions_total",
		Help:      "Total rate limit checks partitioned by decision.",
	}, []string{"decision"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "store_duration_seconds",
		Help:      "Latency of counter store increments in seconds.",
		Buckets:   cfg.buckets,
	}, []string{"backend"})

	errors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Subsystem: cfg.subsystem,
		Name:      "store_errors_total",
		Help:      "Total counter store failures.",
	}, []string{"backend"})

	cfg.registry.MustRegister(decisions, duration, errors)

	return &Collector{
		decisions: decisions,
		duration:  duration,
		errors:    errors,
	}
}

// Observe implements windowlimit.Observer.
func (c *Collector) Observe(_ context.Context, _ string, d *windowlimit.Decision, err error) {
	switch {
	case err != nil:
		c.decisions.WithLabelValues(Errored).Inc()
	case d.Allowed:
		c.decisions.WithLabelValues(Allowed).Inc()
	default:
		c.decisions.WithLabelValues(Denied).Inc()
	}
}

// WrapStore returns a store that records latency and failures of every
// Increment delegated to inner.
func WrapStore(inner store.Store, backend string, c *Collector) store.Store {
	return &instrumentedStore{
		inner:     inner,
		backend:   backend,
		collector: c,
	}
}

type instrumentedStore struct {
	inner     store.Store
	backend   string
	collector *Collector
}

func (s *instrumentedStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	start := time.Now()
	count, err := s.inner.Increment(ctx, key, window)
	s.collector.duration.WithLabelValues(s.backend).Observe(time.Since(start).Seconds())

	if err != nil {
		s.collector.errors.WithLabelValues(s.backend).Inc()
	}
	return count, err
}

// Reset forwards to inner when it supports per-key reset.
func (s *instrumentedStore) Reset(ctx context.Context, key string) error {
	r, ok := s.inner.(store.Resetter)
	if !ok {
		return windowlimit.ErrResetNotSupported
	}
	return r.Reset(ctx, key)
}
