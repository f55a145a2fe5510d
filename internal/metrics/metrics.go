// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes pipeline counters to Prometheus and keeps a
// process-local copy that research runs read back as a Snapshot.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/gtm-research/pkg/types"
)

// CacheStats reports cumulative cache hits and misses. *cache.Cache satisfies it.
type CacheStats interface {
	Stats() (hits, misses int64)
}

// Metrics records external calls and failures. It implements
// resilient.Recorder.
type Metrics struct {
	externalCalls *prometheus.CounterVec
	failedCalls   *prometheus.CounterVec
	inflight      prometheus.Gauge

	cache    CacheStats
	calls    atomic.Int64
	failures atomic.Int64
}

// New registers the pipeline collectors on reg. cache may be nil.
func New(reg prometheus.Registerer, cache CacheStats) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		externalCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gtm_research_external_calls_total",
			Help: "External calls attempted, by source.",
		}, []string{"source"}),
		failedCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gtm_research_failed_calls_total",
			Help: "External calls that failed after retries, by source and error kind.",
		}, []string{"source", "kind"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "gtm_research_inflight_calls",
			Help: "External calls currently holding a concurrency permit.",
		}),
		cache: cache,
	}

	if cache != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "gtm_research_cache_hits_total",
			Help: "Evidence cache hits.",
		}, func() float64 {
			h, _ := cache.Stats()
			return float64(h)
		})
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "gtm_research_cache_misses_total",
			Help: "Evidence cache misses, including expired entries.",
		}, func() float64 {
			_, mi := cache.Stats()
			return float64(mi)
		})
	}
	return m
}

// ExternalCall counts one attempt against source.
func (m *Metrics) ExternalCall(source string) {
	m.calls.Add(1)
	m.externalCalls.WithLabelValues(source).Inc()
}

// FailedCall counts one call that ended in failure.
func (m *Metrics) FailedCall(source string, kind types.ErrorKind) {
	m.failures.Add(1)
	m.failedCalls.WithLabelValues(source, string(kind)).Inc()
}

// InFlight returns the gauge tracking held permits. It satisfies limiter.Gauge.
func (m *Metrics) InFlight() prometheus.Gauge { return m.inflight }

// Snapshot is a read-only copy of the cumulative counters.
type Snapshot struct {
	CacheHits     int64
	CacheMisses   int64
	ExternalCalls int64
	FailedCalls   int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		ExternalCalls: m.calls.Load(),
		FailedCalls:   m.failures.Load(),
	}
	if m.cache != nil {
		s.CacheHits, s.CacheMisses = m.cache.Stats()
	}
	return s
}

// Sub returns the counters accumulated since an earlier snapshot.
func (s Snapshot) Sub(earlier Snapshot) Snapshot {
	return Snapshot{
		CacheHits:     s.CacheHits - earlier.CacheHits,
		CacheMisses:   s.CacheMisses - earlier.CacheMisses,
		ExternalCalls: s.ExternalCalls - earlier.ExternalCalls,
		FailedCalls:   s.FailedCalls - earlier.FailedCalls,
	}
}

// CacheHitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}
