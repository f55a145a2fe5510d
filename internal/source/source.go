// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source queries the independent information channels (news, company
// site, professional network, web search, job board) and turns their results
// into scored evidence.
//
// Each channel is a Backend that only knows its wire format. A Module wraps a
// Backend with the evidence cache, the resilient caller, the result cap, and
// relevance scoring, and is the only thing the rest of the pipeline talks to.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/gtm-research/internal/cache"
	"github.com/pdiddy/gtm-research/internal/resilient"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// Hit is one raw result from a backend.
type Hit struct {
	Title       string
	Snippet     string
	URL         string
	PublishedAt time.Time
}

// Backend fetches raw hits for a query from one channel. Implementations
// return *httputil.StatusError for HTTP failures and wrap decode failures so
// the resilient caller can classify them.
type Backend interface {
	Name() types.SourceName
	Fetch(ctx context.Context, domain, query string, limit int) ([]Hit, error)
}

// Source is the capability the pipeline uses: search never fails across
// this boundary, it reports failures inside the outcome.
type Source interface {
	Name() types.SourceName
	Search(ctx context.Context, domain string, q types.Query) types.SourceOutcome
}

// Module adapts a Backend to Source.
type Module struct {
	backend    Backend
	cache      *cache.Cache
	caller     *resilient.Caller
	pacer      *rate.Limiter
	maxResults int
	terms      []string
	now        func() time.Time
	log        *zap.Logger
}

// ModuleConfig holds the per-request collaborators of a Module.
type ModuleConfig struct {
	Cache      *cache.Cache
	Caller     *resilient.Caller
	Pacer      *rate.Limiter
	MaxResults int

	// GoalTerms are the research goal keywords used for relevance scoring.
	GoalTerms []string
	Now       func() time.Time
	Logger    *zap.Logger
}

// NewModule wraps b.
func NewModule(b Backend, cfg ModuleConfig) *Module {
	m := &Module{
		backend:    b,
		cache:      cfg.Cache,
		caller:     cfg.Caller,
		pacer:      cfg.Pacer,
		maxResults: cfg.MaxResults,
		terms:      cfg.GoalTerms,
		now:        cfg.Now,
		log:        cfg.Logger,
	}
	if m.maxResults <= 0 {
		m.maxResults = 3
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// Name returns the wrapped backend's channel.
func (m *Module) Name() types.SourceName { return m.backend.Name() }

// Search runs q for domain: cache lookup, paced and retried backend call,
// result cap, relevance scoring, cache write.
func (m *Module) Search(ctx context.Context, domain string, q types.Query) types.SourceOutcome {
	name := m.backend.Name()
	effective := domain + " " + q.Text
	start := m.now()
	out := types.SourceOutcome{Source: name, Domain: domain, QueryText: q.Text}
	terms := queryTerms(m.terms, q.Text)

	if m.cache != nil {
		if items, ok := m.cache.Get(name, effective); ok {
			// Cached entries are shared across goals; score them for this one.
			now := m.now()
			for i := range items {
				items[i].RawRelevance = Relevance(terms, hitOf(items[i]), i, now)
			}
			out.Succeeded = true
			out.Evidence = items
			out.Cached = true
			out.Latency = now.Sub(start)
			return out
		}
	}

	// Pace outside the caller: the wait holds no permit and no attempt deadline.
	if m.pacer != nil {
		if err := m.pacer.Wait(ctx); err != nil {
			out.ErrorKind = types.ErrorTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				out.ErrorKind = types.ErrorUnknown
			}
			out.Error = fmt.Sprintf("waiting for %s rate limit: %v", name, err)
			out.Latency = m.now().Sub(start)
			m.log.Debug("source pacing abandoned",
				zap.String("source", string(name)),
				zap.String("domain", domain),
				zap.Error(err))
			return out
		}
	}

	hits, attempts, fail := resilient.DoAttempts(ctx, m.caller, string(name), func(actx context.Context) ([]Hit, error) {
		return m.backend.Fetch(actx, domain, q.Text, m.maxResults)
	})
	out.Attempts = attempts
	out.Latency = m.now().Sub(start)

	if fail != nil {
		out.ErrorKind = fail.Kind
		out.Error = fail.Error()
		m.log.Debug("source call failed",
			zap.String("source", string(name)),
			zap.String("domain", domain),
			zap.String("query", q.Text),
			zap.String("kind", string(fail.Kind)),
			zap.Error(fail.Err))
		return out
	}

	if len(hits) > m.maxResults {
		hits = hits[:m.maxResults]
	}
	retrieved := m.now()
	items := make([]types.EvidenceItem, 0, len(hits))
	for i, h := range hits {
		items = append(items, types.EvidenceItem{
			Source:       name,
			QueryText:    q.Text,
			Title:        h.Title,
			Snippet:      h.Snippet,
			URL:          h.URL,
			PublishedAt:  h.PublishedAt,
			RetrievedAt:  retrieved,
			RawRelevance: Relevance(terms, h, i, retrieved),
		})
	}

	if m.cache != nil {
		m.cache.Put(name, effective, items, 0)
	}
	out.Succeeded = true
	out.Evidence = items
	return out
}

func hitOf(e types.EvidenceItem) Hit {
	return Hit{Title: e.Title, Snippet: e.Snippet, URL: e.URL, PublishedAt: e.PublishedAt}
}

// Registry holds the long-lived backends and their pacers. Modules are built
// from it per request so they share one cache and one limiter per run.
type Registry struct {
	backends map[types.SourceName]Backend
	pacers   map[types.SourceName]*rate.Limiter
	order    []types.SourceName
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[types.SourceName]Backend),
		pacers:   make(map[types.SourceName]*rate.Limiter),
	}
}

// Register adds b. A positive ratePerSecond paces calls with a token bucket.
func (r *Registry) Register(b Backend, ratePerSecond float64, burst int) {
	name := b.Name()
	if _, exists := r.backends[name]; !exists {
		r.order = append(r.order, name)
	}
	r.backends[name] = b
	if ratePerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		r.pacers[name] = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	} else {
		delete(r.pacers, name)
	}
}

// Names returns the registered channels in registration order.
func (r *Registry) Names() []types.SourceName {
	out := make([]types.SourceName, len(r.order))
	copy(out, r.order)
	return out
}

// Backend returns the backend for name.
func (r *Registry) Backend(name types.SourceName) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Modules builds one Module per registered backend. cfg.Pacer is ignored;
// each module gets its channel's own pacer.
func (r *Registry) Modules(cfg ModuleConfig) map[types.SourceName]Source {
	out := make(map[types.SourceName]Source, len(r.backends))
	for _, name := range r.order {
		mc := cfg
		mc.Pacer = r.pacers[name]
		out[name] = NewModule(r.backends[name], mc)
	}
	return out
}

// FromConfig registers a backend for every enabled source whose credentials
// are present. Sources skipped for missing credentials are logged.
func FromConfig(cfg types.SourcesConfig, client *http.Client, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	r := NewRegistry()
	ua := cfg.UserAgent

	add := func(name types.SourceName, b Backend, reason string) {
		sc := cfg.For(name)
		if !sc.Enabled {
			return
		}
		if b == nil {
			log.Warn("source disabled", zap.String("source", string(name)), zap.String("reason", reason))
			return
		}
		r.Register(b, sc.RatePerSecond, sc.Burst)
	}

	var news Backend
	if cfg.News.APIKey != "" {
		news = &NewsBackend{APIKey: cfg.News.APIKey, BaseURL: cfg.News.BaseURL, Client: client, UserAgent: ua}
	}
	add(types.SourceNews, news, "news api key not set")

	add(types.SourceCompanySite, &SiteBackend{BaseURL: cfg.CompanySite.BaseURL, Paths: cfg.SitePaths, Client: client, UserAgent: ua}, "")

	var pro, jobs Backend
	if key := cfg.ProfessionalNetwork.APIKey; key != "" && cfg.SearchEngineID != "" {
		pro = NewProfessionalNetwork(key, cfg.SearchEngineID, cfg.ProfessionalNetwork.BaseURL, client, ua)
	}
	add(types.SourceProfessionalNetwork, pro, "google api key or search engine id not set")

	var web Backend
	if cfg.WebSearch.APIKey != "" {
		web = &TavilyBackend{APIKey: cfg.WebSearch.APIKey, BaseURL: cfg.WebSearch.BaseURL, Client: client, UserAgent: ua}
	}
	add(types.SourceWebSearch, web, "tavily api key not set")

	if key := cfg.JobBoard.APIKey; key != "" && cfg.SearchEngineID != "" {
		jobs = NewJobBoard(key, cfg.SearchEngineID, cfg.JobBoard.BaseURL, client, ua)
	}
	add(types.SourceJobBoard, jobs, "google api key or search engine id not set")

	return r
}
