// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research drives each company of a request through the evidence
// pipeline: strategize, execute, evaluate, refine while confidence is low
// and rounds remain, then synthesize.
//
// Every request gets its own concurrency limiter and resilient caller; the
// evidence cache, metrics, source registry and language model are shared by
// all requests served by one Engine.
package research

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/gtm-research/internal/cache"
	"github.com/pdiddy/gtm-research/internal/evaluate"
	"github.com/pdiddy/gtm-research/internal/execute"
	"github.com/pdiddy/gtm-research/internal/keywords"
	"github.com/pdiddy/gtm-research/internal/limiter"
	"github.com/pdiddy/gtm-research/internal/llm"
	"github.com/pdiddy/gtm-research/internal/metrics"
	"github.com/pdiddy/gtm-research/internal/refine"
	"github.com/pdiddy/gtm-research/internal/resilient"
	"github.com/pdiddy/gtm-research/internal/source"
	"github.com/pdiddy/gtm-research/internal/strategy"
	"github.com/pdiddy/gtm-research/internal/synthesize"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// ErrNoSources is returned when the registry has no usable source.
var ErrNoSources = errors.New("no sources configured")

// Engine runs research requests.
type Engine struct {
	cfg       types.PipelineConfig
	registry  *source.Registry
	cache     *cache.Cache
	metrics   *metrics.Metrics
	completer llm.Completer
	refiner   *refine.Refiner
	log       *zap.Logger
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache shares c across requests. Without it the engine creates its own.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics reports calls, failures and in-flight permits to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCompleter sets the language model used for query generation and
// synthesis. Without one both fall back to templates.
func WithCompleter(c llm.Completer) Option {
	return func(e *Engine) { e.completer = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an Engine over the sources in registry.
func New(cfg types.PipelineConfig, registry *source.Registry, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	r, err := refine.New(cfg.Refiner)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		refiner:  r,
		log:      zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if e.registry == nil {
		e.registry = source.NewRegistry()
	}
	if e.cache == nil {
		e.cache = cache.New(cfg.Cache.TTL)
	}
	return e, nil
}

// Cache returns the evidence cache shared by the engine's requests.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Sources returns the channels requests will query.
func (e *Engine) Sources() []types.SourceName { return e.registry.Names() }

// Strategize returns the initial queries the engine would issue for one
// company, without executing them.
func (e *Engine) Strategize(ctx context.Context, goal, domain string, depth types.Depth) ([]types.Query, error) {
	req := types.ResearchRequest{Goal: goal, Domains: []string{domain}, Depth: depth}
	if err := req.Normalize(e.cfg); err != nil {
		return nil, err
	}
	if len(e.registry.Names()) == 0 {
		return nil, ErrNoSources
	}
	caller := e.newCaller(limiter.New(req.MaxParallel, e.gauge()), nil)
	s := strategy.New(e.completer, caller, e.registry.Names(), e.log)
	return s.Generate(ctx, req.Goal, req.Domains[0], req.Depth), nil
}

// Run executes req and returns one result per requested domain, in request
// order. Only an invalid request is an error; source and model failures are
// reported inside the results.
func (e *Engine) Run(ctx context.Context, req types.ResearchRequest) (*types.ResearchResponse, error) {
	r, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	results := make([]types.SynthesisResult, len(r.req.Domains))
	totals := r.execute(ctx, func(i int, res types.SynthesisResult) {
		results[i] = res
	})
	return &types.ResearchResponse{
		ResearchID:                r.id,
		TotalCompanies:            totals.TotalCompanies,
		SearchStrategiesGenerated: totals.SearchStrategiesGenerated,
		TotalSearchesExecuted:     totals.TotalSearchesExecuted,
		ProcessingTimeMS:          totals.ProcessingTimeMS,
		Results:                   results,
		SearchPerformance:         totals.SearchPerformance,
	}, nil
}

// Stream executes req in the background. The channel carries a start event,
// one result event per company in completion order, and an end event with
// the run totals, then closes. It is buffered for the whole run, so a slow
// reader never stalls the pipeline.
func (e *Engine) Stream(ctx context.Context, req types.ResearchRequest) (<-chan types.Event, error) {
	r, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan types.Event, len(r.req.Domains)+2)
	em := &emitter{ch: ch, id: r.id}

	go func() {
		defer close(ch)
		em.send(types.Event{Type: types.EventStart})
		totals := r.execute(ctx, func(_ int, res types.SynthesisResult) {
			em.send(types.Event{Type: types.EventResult, Domain: res.Domain, Result: &res})
		})
		em.send(types.Event{Type: types.EventEnd, Totals: &totals})
	}()
	return ch, nil
}

// emitter stamps events with a sequence number in channel order.
type emitter struct {
	mu  sync.Mutex
	ch  chan<- types.Event
	id  string
	seq uint64
}

func (em *emitter) send(ev types.Event) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.seq++
	ev.ResearchID = em.id
	ev.Seq = em.seq
	ev.Timestamp = time.Now().UTC()
	em.ch <- ev
}

func (e *Engine) gauge() limiter.Gauge {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.InFlight()
}

func (e *Engine) newCaller(lim *limiter.Limiter, stats *runStats) *resilient.Caller {
	opts := []resilient.Option{resilient.WithLogger(e.log)}
	switch {
	case stats != nil:
		opts = append(opts, resilient.WithRecorder(stats))
	case e.metrics != nil:
		opts = append(opts, resilient.WithRecorder(e.metrics))
	}
	return resilient.New(lim, e.cfg.Caller, opts...)
}

// prepare validates req and builds the per-request pipeline.
func (e *Engine) prepare(req types.ResearchRequest) (*run, error) {
	req.Domains = append([]string(nil), req.Domains...)
	if err := req.Normalize(e.cfg); err != nil {
		return nil, err
	}
	names := e.registry.Names()
	if len(names) == 0 {
		return nil, ErrNoSources
	}

	r := &run{
		id:      e.newID(),
		req:     req,
		cfg:     e.cfg,
		refiner: e.refiner,
		log:     e.log,
	}
	if e.metrics != nil {
		r.stats.rec = e.metrics
	}
	r.lim = limiter.New(req.MaxParallel, e.gauge())
	caller := e.newCaller(r.lim, &r.stats)

	modules := e.registry.Modules(source.ModuleConfig{
		Cache:      e.cache,
		Caller:     caller,
		MaxResults: e.cfg.Sources.MaxResults,
		GoalTerms:  keywords.Tokens(req.Goal),
		Logger:     e.log,
	})
	r.coord = execute.New(modules, names, e.log)
	r.strategist = strategy.New(e.completer, caller, names, e.log)
	r.evaluator = evaluate.New(e.cfg.Evaluator, names)
	r.synth = synthesize.New(e.completer, caller, e.cfg.Synthesis, r.evaluator.Floor(), e.log)

	r.budget = e.cfg.Refiner.RoundBudget
	if req.Depth == types.DepthQuick && r.budget > 1 {
		r.budget = 1
	}
	return r, nil
}

// runStats counts one request's external calls and forwards them to the
// process-wide recorder.
type runStats struct {
	rec      resilient.Recorder
	calls    atomic.Int64
	failures atomic.Int64
}

func (s *runStats) ExternalCall(name string) {
	s.calls.Add(1)
	if s.rec != nil {
		s.rec.ExternalCall(name)
	}
}

func (s *runStats) FailedCall(name string, kind types.ErrorKind) {
	s.failures.Add(1)
	if s.rec != nil {
		s.rec.FailedCall(name, kind)
	}
}

// run is the per-request pipeline.
type run struct {
	id     string
	req    types.ResearchRequest
	cfg    types.PipelineConfig
	budget int
	lim    *limiter.Limiter
	stats  runStats
	log    *zap.Logger

	coord      *execute.Coordinator
	strategist *strategy.Strategist
	evaluator  *evaluate.Evaluator
	refiner    *refine.Refiner
	synth      *synthesize.Synthesizer

	queries   atomic.Int64
	searches  atomic.Int64
	cached    atomic.Int64
	companyNS atomic.Int64
}

// execute runs every company and calls done as each finishes. done may be
// called from several goroutines at once, each with a distinct index.
func (r *run) execute(ctx context.Context, done func(i int, res types.SynthesisResult)) types.RunTotals {
	start := time.Now()
	if d := r.cfg.Orchestrator.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	r.log.Info("research started",
		zap.String("research_id", r.id),
		zap.Int("companies", len(r.req.Domains)),
		zap.String("depth", string(r.req.Depth)),
		zap.Int("max_parallel", r.req.MaxParallel))

	var g errgroup.Group
	g.SetLimit(r.req.MaxParallel)
	for i, domain := range r.req.Domains {
		i, domain := i, domain
		g.Go(func() error {
			done(i, r.company(ctx, domain))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		r.log.Warn("research cut short", zap.String("research_id", r.id), zap.Error(err))
	}
	totals := r.totals(time.Since(start))
	r.log.Info("research finished",
		zap.String("research_id", r.id),
		zap.Int("queries", totals.SearchStrategiesGenerated),
		zap.Int("searches", totals.TotalSearchesExecuted),
		zap.Int64("external_calls", totals.SearchPerformance.TotalExternalCalls),
		zap.Int64("failed_calls", totals.SearchPerformance.FailedRequests),
		zap.Int64("elapsed_ms", totals.ProcessingTimeMS))
	return totals
}

// company runs one domain through the state machine. It always returns a
// result, even when ctx is done.
func (r *run) company(ctx context.Context, domain string) types.SynthesisResult {
	start := time.Now()
	defer func() { r.companyNS.Add(int64(time.Since(start))) }()

	state := types.NewCompanyState(domain, r.req.Goal)
	r.search(ctx, state, r.initialQueries(ctx, domain))

	for {
		ev := r.evaluator.Evaluate(state)
		state.Confidence = ev.Confidence
		if state.Status == types.StatusPending {
			r.advance(state, types.StatusEvaluated)
		}

		next := evaluate.NextStatus(state, ev, *r.req.ConfidenceThreshold, r.budget)
		if next != types.StatusRefining {
			r.advance(state, next)
			break
		}
		var followUps []types.Query
		if ctx.Err() == nil {
			followUps = r.refiner.Refine(state, ev.Gaps, r.budget)
		}
		if len(followUps) == 0 {
			r.advance(state, types.StatusSynthesized)
			break
		}
		r.advance(state, types.StatusRefining)
		state.RefinementRoundsUsed++
		r.log.Debug("refining company",
			zap.String("domain", domain),
			zap.Int("round", state.RefinementRoundsUsed),
			zap.Float64("confidence", ev.Confidence),
			zap.Int("queries", len(followUps)))
		r.search(ctx, state, followUps)
	}

	res := r.synth.Synthesize(ctx, state)
	r.log.Info("company researched",
		zap.String("domain", domain),
		zap.String("status", string(res.Status)),
		zap.Float64("confidence", res.Confidence),
		zap.Int("evidence", res.EvidenceCount),
		zap.Int("refinement_rounds", res.RefinementRounds))
	return res
}

func (r *run) initialQueries(ctx context.Context, domain string) []types.Query {
	if len(r.req.Queries) > 0 {
		out := make([]types.Query, len(r.req.Queries))
		copy(out, r.req.Queries)
		for i := range out {
			out[i].GenerationRound = 0
		}
		return out
	}
	return r.strategist.Generate(ctx, r.req.Goal, domain, r.req.Depth)
}

// search executes qs and merges the outcomes once they have all returned.
func (r *run) search(ctx context.Context, state *types.CompanyState, qs []types.Query) {
	state.AddQueries(qs)
	r.queries.Add(int64(len(qs)))

	outcomes := r.coord.Execute(ctx, state.Domain, qs)
	r.searches.Add(int64(len(outcomes)))
	for _, o := range outcomes {
		if o.Cached {
			r.cached.Add(1)
		}
	}
	added := state.Merge(outcomes)
	r.log.Debug("merged outcomes",
		zap.String("domain", state.Domain),
		zap.Int("outcomes", len(outcomes)),
		zap.Int("new_evidence", added))
}

func (r *run) advance(state *types.CompanyState, next types.Status) {
	if err := state.Transition(next); err != nil {
		r.log.Error("company state", zap.Error(err))
	}
}

func (r *run) totals(elapsed time.Duration) types.RunTotals {
	searches := r.searches.Load()
	perf := types.SearchPerformance{
		FailedRequests:     r.stats.failures.Load(),
		TotalExternalCalls: r.stats.calls.Load(),
		PeakParallel:       r.lim.Peak(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		perf.QueriesPerSecond = float64(searches) / secs
	}
	if n := len(r.req.Domains); n > 0 {
		perf.AvgLatencyPerCompanyMS = float64(r.companyNS.Load()) / float64(n) / float64(time.Millisecond)
	}
	if searches > 0 {
		perf.CacheHitRate = float64(r.cached.Load()) / float64(searches)
	}
	return types.RunTotals{
		TotalCompanies:            len(r.req.Domains),
		SearchStrategiesGenerated: int(r.queries.Load()),
		TotalSearchesExecuted:     int(searches),
		ProcessingTimeMS:          elapsed.Milliseconds(),
		SearchPerformance:         perf,
	}
}
