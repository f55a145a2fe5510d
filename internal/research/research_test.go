// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/gtm-research/internal/cache"
	"github.com/pdiddy/gtm-research/internal/evaluate"
	"github.com/pdiddy/gtm-research/internal/metrics"
	"github.com/pdiddy/gtm-research/internal/source"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// fakeBackend answers every query with fetch and records what it was asked.
type fakeBackend struct {
	name  types.SourceName
	fetch func(ctx context.Context, domain, query string) ([]source.Hit, error)
	calls atomic.Int32

	mu      sync.Mutex
	queries []string
}

func (f *fakeBackend) Name() types.SourceName { return f.name }

func (f *fakeBackend) Fetch(ctx context.Context, domain, query string, _ int) ([]source.Hit, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.fetch(ctx, domain, query)
}

func (f *fakeBackend) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// hitsPerQuery returns n distinct hits for every (domain, query).
func hitsPerQuery(name types.SourceName, n int) func(context.Context, string, string) ([]source.Hit, error) {
	return func(_ context.Context, domain, query string) ([]source.Hit, error) {
		out := make([]source.Hit, n)
		for i := range out {
			out[i] = source.Hit{
				Title:   fmt.Sprintf("%s result %d", domain, i),
				Snippet: fmt.Sprintf("%s says %s", name, query),
				URL:     fmt.Sprintf("https://%s.example/%s/%s/%d", name, domain, query, i),
			}
		}
		return out, nil
	}
}

func blockUntilDone(ctx context.Context, _, _ string) ([]source.Hit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() types.PipelineConfig {
	cfg := types.DefaultPipelineConfig()
	cfg.Caller = types.CallerConfig{
		Timeout:     2 * time.Second,
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
	return cfg
}

func newEngine(t *testing.T, cfg types.PipelineConfig, backends ...*fakeBackend) *Engine {
	t.Helper()
	reg := source.NewRegistry()
	for _, b := range backends {
		reg.Register(b, 0, 0)
	}
	e, err := New(cfg, reg)
	require.NoError(t, err)
	return e
}

func TestRunReturnsResultPerDomainInRequestOrder(t *testing.T) {
	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 2)}
	web := &fakeBackend{name: types.SourceWebSearch, fetch: hitsPerQuery(types.SourceWebSearch, 1)}
	e := newEngine(t, testConfig(), news, web)

	domains := []string{"https://www.Stripe.com", "acme.io", "globex.com"}
	resp, err := e.Run(context.Background(), types.ResearchRequest{Goal: "hiring platform engineers", Domains: domains})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "stripe.com", resp.Results[0].Domain)
	assert.Equal(t, "acme.io", resp.Results[1].Domain)
	assert.Equal(t, "globex.com", resp.Results[2].Domain)
	assert.Equal(t, []string{"https://www.Stripe.com", "acme.io", "globex.com"}, domains, "request slice is not modified")

	assert.NotEmpty(t, resp.ResearchID)
	assert.Equal(t, 3, resp.TotalCompanies)
	assert.Equal(t, int(news.calls.Load()+web.calls.Load()), resp.TotalSearchesExecuted)
	assert.GreaterOrEqual(t, resp.SearchStrategiesGenerated, resp.TotalSearchesExecuted)

	for _, r := range resp.Results {
		assert.Equal(t, types.StatusSynthesized, r.Status)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 0.95)
		assert.LessOrEqual(t, r.RefinementRounds, 2)
		assert.NotEmpty(t, r.Summary)
	}
}

func TestConcurrencyNeverExceedsMaxParallel(t *testing.T) {
	var cur, peak atomic.Int32
	slow := func(ctx context.Context, _, _ string) ([]source.Hit, error) {
		n := cur.Add(1)
		defer cur.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, nil
	}
	e := newEngine(t, testConfig(),
		&fakeBackend{name: types.SourceNews, fetch: slow},
		&fakeBackend{name: types.SourceWebSearch, fetch: slow},
		&fakeBackend{name: types.SourceJobBoard, fetch: slow},
	)

	resp, err := e.Run(context.Background(), types.ResearchRequest{
		Goal:        "pricing changes",
		Domains:     []string{"a.com", "b.com", "c.com", "d.com", "e.com"},
		MaxParallel: 2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 5)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.LessOrEqual(t, resp.SearchPerformance.PeakParallel, int64(2))
	assert.Positive(t, resp.SearchPerformance.PeakParallel)
}

func TestTimedOutSourceIsExcludedFromConfidence(t *testing.T) {
	cfg := testConfig()
	cfg.Caller.Timeout = 30 * time.Millisecond
	cfg.Refiner.RoundBudget = 0

	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 3)}
	web := &fakeBackend{name: types.SourceWebSearch, fetch: blockUntilDone}
	e := newEngine(t, cfg, news, web)

	resp, err := e.Run(context.Background(), types.ResearchRequest{
		Goal:    "find companies using Kubernetes with recent security incidents",
		Domains: []string{"example.com"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	res := resp.Results[0]
	assert.Equal(t, types.StatusSynthesized, res.Status)
	assert.Equal(t, []types.SourceName{types.SourceNews}, res.EvidenceSources)
	assert.Equal(t, 3, res.EvidenceCount)

	// Only news counts: a failed source never drags the mean toward the floor.
	want := evaluate.New(cfg.Evaluator, nil).Score(3)
	assert.InDelta(t, want, res.Confidence, 1e-9)

	assert.Equal(t, int32(2), web.calls.Load(), "one retry after the first timeout")
	assert.Equal(t, int64(1), resp.SearchPerformance.FailedRequests)
	assert.Equal(t, int64(3), resp.SearchPerformance.TotalExternalCalls)
}

func TestLowConfidenceRefinesExactlyOnceWithBudgetOne(t *testing.T) {
	cfg := testConfig()
	cfg.Refiner.RoundBudget = 1
	cfg.Evaluator.Threshold = 0.8

	// One news item and nothing from web search scores about 0.59, well
	// under the threshold, and stays there after refinement.
	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 1)}
	web := &fakeBackend{name: types.SourceWebSearch, fetch: hitsPerQuery(types.SourceWebSearch, 0)}
	e := newEngine(t, cfg, news, web)

	resp, err := e.Run(context.Background(), types.ResearchRequest{Goal: "SOC2 compliance audit", Domains: []string{"acme.com"}})
	require.NoError(t, err)

	res := resp.Results[0]
	assert.Equal(t, 1, res.RefinementRounds)
	assert.Equal(t, types.StatusSynthesized, res.Status)
	assert.Less(t, res.Confidence, 0.8)
	assert.Greater(t, int(news.calls.Load()+web.calls.Load()), 2, "refinement issued follow-up searches")
}

func TestExplicitZeroThresholdNeverRefines(t *testing.T) {
	cfg := testConfig()
	cfg.Refiner.RoundBudget = 2

	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 0)}
	e := newEngine(t, cfg, news)

	zero := 0.0
	resp, err := e.Run(context.Background(), types.ResearchRequest{
		Goal:                "SOC2 compliance audit",
		Domains:             []string{"acme.com"},
		ConfidenceThreshold: &zero,
	})
	require.NoError(t, err)

	res := resp.Results[0]
	assert.Equal(t, 0, res.RefinementRounds)
	assert.Equal(t, types.StatusSynthesized, res.Status)
	assert.Equal(t, resp.SearchStrategiesGenerated, int(news.calls.Load()))
}

func TestRefinementNeverExceedsBudget(t *testing.T) {
	for _, budget := range []int{0, 1, 2, 3} {
		t.Run(fmt.Sprintf("budget %d", budget), func(t *testing.T) {
			cfg := testConfig()
			cfg.Refiner.RoundBudget = budget
			cfg.Evaluator.Threshold = 0.99
			news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 0)}
			e := newEngine(t, cfg, news)

			resp, err := e.Run(context.Background(), types.ResearchRequest{
				Goal:    "expansion into european markets",
				Domains: []string{"acme.com"},
				Depth:   types.DepthComprehensive,
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, resp.Results[0].RefinementRounds, budget)
			assert.Equal(t, types.StatusSynthesized, resp.Results[0].Status)
		})
	}
}

func TestQuickDepthCapsRefinementAtOneRound(t *testing.T) {
	cfg := testConfig()
	cfg.Refiner.RoundBudget = 3
	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 0)}
	e := newEngine(t, cfg, news)

	resp, err := e.Run(context.Background(), types.ResearchRequest{
		Goal:    "expansion into european markets",
		Domains: []string{"acme.com"},
		Depth:   types.DepthQuick,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.Results[0].RefinementRounds, 1)
}

func TestEverySourceFailingYieldsFailedResult(t *testing.T) {
	cfg := testConfig()
	cfg.Caller.Timeout = 10 * time.Millisecond
	e := newEngine(t, cfg,
		&fakeBackend{name: types.SourceNews, fetch: blockUntilDone},
		&fakeBackend{name: types.SourceWebSearch, fetch: blockUntilDone},
	)

	resp, err := e.Run(context.Background(), types.ResearchRequest{Goal: "layoffs", Domains: []string{"ghost.io", "void.io"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Equal(t, types.StatusFailed, r.Status)
		assert.Equal(t, 0, r.EvidenceCount)
		assert.Equal(t, cfg.Evaluator.Floor, r.Confidence)
		assert.Equal(t, 0, r.RefinementRounds)
	}
}

func TestRequestTimeoutStillReturnsEveryDomain(t *testing.T) {
	cfg := testConfig()
	cfg.Orchestrator.RequestTimeout = 50 * time.Millisecond
	e := newEngine(t, cfg, &fakeBackend{name: types.SourceNews, fetch: blockUntilDone})

	start := time.Now()
	resp, err := e.Run(context.Background(), types.ResearchRequest{
		Goal:        "migration to the cloud",
		Domains:     []string{"a.com", "b.com", "c.com"},
		MaxParallel: 1,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, resp.Results, 3)
	for _, r := range resp.Results {
		assert.Equal(t, types.StatusFailed, r.Status)
	}
}

func TestStreamEmitsStartResultsInCompletionOrderAndEnd(t *testing.T) {
	release := make(chan struct{})
	fetch := func(ctx context.Context, domain, query string) ([]source.Hit, error) {
		if domain == "slow.com" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return hitsPerQuery(types.SourceNews, 1)(ctx, domain, query)
	}
	cfg := testConfig()
	cfg.Refiner.RoundBudget = 0
	e := newEngine(t, cfg, &fakeBackend{name: types.SourceNews, fetch: fetch})

	events, err := e.Stream(context.Background(), types.ResearchRequest{
		Goal:    "partnership announcements",
		Domains: []string{"slow.com", "fast.com"},
	})
	require.NoError(t, err)

	var got []types.Event
	for ev := range events {
		got = append(got, ev)
		if ev.Type == types.EventResult && ev.Domain == "fast.com" {
			close(release)
		}
	}

	require.Len(t, got, 4)
	assert.Equal(t, types.EventStart, got[0].Type)
	assert.Equal(t, "fast.com", got[1].Domain, "results arrive in completion order")
	assert.Equal(t, "slow.com", got[2].Domain)
	assert.Equal(t, types.EventEnd, got[3].Type)

	for i, ev := range got {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, got[0].ResearchID, ev.ResearchID)
	}
	require.NotNil(t, got[1].Result)
	assert.Equal(t, types.StatusSynthesized, got[1].Result.Status)
	require.NotNil(t, got[3].Totals)
	assert.Equal(t, 2, got[3].Totals.TotalCompanies)
	assert.Equal(t, 2, got[3].Totals.TotalSearchesExecuted)
}

func TestIdenticalRequestIsServedFromCache(t *testing.T) {
	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 2)}
	web := &fakeBackend{name: types.SourceWebSearch, fetch: hitsPerQuery(types.SourceWebSearch, 1)}

	reg := source.NewRegistry()
	reg.Register(news, 0, 0)
	reg.Register(web, 0, 0)
	c := cache.New(time.Minute)
	m := metrics.New(prometheus.NewRegistry(), c)
	e, err := New(testConfig(), reg, WithCache(c), WithMetrics(m))
	require.NoError(t, err)

	req := types.ResearchRequest{Goal: "hiring data engineers", Domains: []string{"acme.com"}}
	first, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	calls := news.calls.Load() + web.calls.Load()
	assert.Equal(t, first.SearchPerformance.TotalExternalCalls, m.Snapshot().ExternalCalls)

	second, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, calls, news.calls.Load()+web.calls.Load(), "no new external calls")
	assert.Equal(t, int64(0), second.SearchPerformance.TotalExternalCalls)
	assert.InDelta(t, 1.0, second.SearchPerformance.CacheHitRate, 1e-9)
	assert.NotEqual(t, first.ResearchID, second.ResearchID)

	assert.Equal(t, first.Results[0].EvidenceCount, second.Results[0].EvidenceCount)
	assert.Equal(t, first.Results[0].TopEvidence, second.Results[0].TopEvidence)
	assert.Equal(t, first.Results[0].Confidence, second.Results[0].Confidence)
}

func TestPlanQueriesReplaceStrategist(t *testing.T) {
	cfg := testConfig()
	cfg.Refiner.RoundBudget = 0
	news := &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 1)}
	web := &fakeBackend{name: types.SourceWebSearch, fetch: hitsPerQuery(types.SourceWebSearch, 1)}
	e := newEngine(t, cfg, news, web)

	_, err := e.Run(context.Background(), types.ResearchRequest{
		Goal:    "hiring",
		Domains: []string{"acme.com"},
		Queries: []types.Query{{Text: "acme series b", TargetSource: types.SourceNews, GenerationRound: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme series b"}, news.seen())
	assert.Empty(t, web.seen())
}

func TestStrategizeUsesRegisteredSources(t *testing.T) {
	e := newEngine(t, testConfig(),
		&fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 1)},
		&fakeBackend{name: types.SourceJobBoard, fetch: hitsPerQuery(types.SourceJobBoard, 1)},
	)
	qs, err := e.Strategize(context.Background(), "hiring rust engineers", "acme.com", types.DepthStandard)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, types.SourceNews, qs[0].TargetSource)
	assert.Equal(t, types.SourceJobBoard, qs[1].TargetSource)
	for _, q := range qs {
		assert.Equal(t, 0, q.GenerationRound)
	}
}

func TestInvalidRequests(t *testing.T) {
	e := newEngine(t, testConfig(), &fakeBackend{name: types.SourceNews, fetch: hitsPerQuery(types.SourceNews, 1)})

	_, err := e.Run(context.Background(), types.ResearchRequest{Domains: []string{"a.com"}})
	assert.ErrorContains(t, err, "goal is empty")

	_, err = e.Stream(context.Background(), types.ResearchRequest{Goal: "x"})
	assert.ErrorContains(t, err, "no company domains")

	_, err = e.Run(context.Background(), types.ResearchRequest{Goal: "x", Domains: []string{"a.com"}, Depth: "deep"})
	assert.ErrorContains(t, err, "invalid depth")

	empty := newEngine(t, testConfig())
	_, err = empty.Run(context.Background(), types.ResearchRequest{Goal: "x", Domains: []string{"a.com"}})
	assert.ErrorIs(t, err, ErrNoSources)
}
