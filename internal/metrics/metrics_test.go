// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/gtm-research/pkg/types"
)

type stubCache struct{ hits, misses int64 }

func (s *stubCache) Stats() (int64, int64) { return s.hits, s.misses }

func TestCountersAndSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	sc := &stubCache{}
	m := New(reg, sc)

	before := m.Snapshot()
	m.ExternalCall("news")
	m.ExternalCall("news")
	m.ExternalCall("web_search")
	m.FailedCall("news", types.ErrorTimeout)
	sc.hits, sc.misses = 3, 1

	assert.Equal(t, 2.0, testutil.ToFloat64(m.externalCalls.WithLabelValues("news")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedCalls.WithLabelValues("news", "timeout")))

	delta := m.Snapshot().Sub(before)
	assert.Equal(t, int64(3), delta.ExternalCalls)
	assert.Equal(t, int64(1), delta.FailedCalls)
	assert.InDelta(t, 0.75, delta.CacheHitRate(), 1e-9)
}

func TestCacheCounterFuncs(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, &stubCache{hits: 4, misses: 2})

	expected := `
# HELP gtm_research_cache_hits_total Evidence cache hits.
# TYPE gtm_research_cache_hits_total counter
gtm_research_cache_hits_total 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "gtm_research_cache_hits_total"))
}

func TestInFlightGauge(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	m.InFlight().Inc()
	m.InFlight().Inc()
	m.InFlight().Dec()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight()))
	assert.Equal(t, 0.0, Snapshot{}.CacheHitRate())
}
