// Package metrics records dispatch counts and timings per message name. It is
// a pure side channel: the buses call it after the terminal state is known and
// its outcome never affects control flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service holds all Prometheus metrics the dispatch core emits.
type Service struct {
	success   *prometheus.CounterVec
	failure   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	cacheHits *prometheus.CounterVec
	inFlight  prometheus.Gauge
}

// New creates and registers all dispatch metrics against the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests inject their own
// registry to avoid collisions.
func New(reg prometheus.Registerer) *Service {
	factory := promauto.With(reg)
	return &Service{
		success: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatch_success_total",
			Help: "Total successful dispatches by message name and kind",
		}, []string{"message", "kind"}),
		failure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatch_failure_total",
			Help: "Total failed dispatches by message name, kind and failure reason",
		}, []string{"message", "kind", "reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_dispatch_duration_seconds",
			Help:    "Dispatch latency from resolution to terminal state",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"message", "kind", "outcome"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatch_cache_hits_total",
			Help: "Total query dispatches served from the result cache",
		}, []string{"message"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_dispatch_in_flight",
			Help: "Number of dispatches currently in the pipeline",
		}),
	}
}

// RecordSuccess records a successful dispatch. cacheHit marks query results
// served from cache; those still count as successes.
func (s *Service) RecordSuccess(message, kind string, d time.Duration, cacheHit bool) {
	s.success.WithLabelValues(message, kind).Inc()
	s.duration.WithLabelValues(message, kind, "success").Observe(d.Seconds())
	if cacheHit {
		s.cacheHits.WithLabelValues(message).Inc()
	}
}

// RecordFailure records a failed dispatch with its failure reason.
func (s *Service) RecordFailure(message, kind string, d time.Duration, reason string) {
	s.failure.WithLabelValues(message, kind, reason).Inc()
	s.duration.WithLabelValues(message, kind, "failure").Observe(d.Seconds())
}

// Begin marks a dispatch entering the pipeline.
func (s *Service) Begin() { s.inFlight.Inc() }

// End marks a dispatch leaving the pipeline.
func (s *Service) End() { s.inFlight.Dec() }
