// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package strategy turns a research goal into the initial batch of
// source-tagged search queries for one company.
package strategy

import (
	"bytes"
	"context"
	"math"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/gtm-research/internal/keywords"
	"github.com/pdiddy/gtm-research/internal/llm"
	"github.com/pdiddy/gtm-research/internal/resilient"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// Expected relevance given to templated queries.
const (
	fallbackRelevance = 0.5
	variantRelevance  = 0.3
)

var promptTmpl = template.Must(template.New("strategy").Parse(`You plan go-to-market research. Write {{.Count}} distinct web search queries that would surface evidence for the research goal about the company below.

Research goal: {{.Goal}}
Company: {{.Company}} ({{.Domain}})

Spread the queries across these sources: {{.Sources}}.
Source guidance:
- news: press coverage, announcements, funding, partnerships
- company_site: wording the company would use on its own pages
- professional_network: company page posts, headcount, team changes
- web_search: general web coverage, reviews, analyst notes
- job_board: open roles and the skills they ask for

Respond with a JSON object only, in this shape:
{"queries": [{"text": "query text", "source": "news", "relevance": 0.8}]}
"relevance" is your estimate in [0, 1] of how likely the query finds useful evidence.
`))

// fallbackTemplates render one deterministic query per source.
var fallbackTemplates = map[types.SourceName]*template.Template{
	types.SourceNews:                template.Must(template.New("news").Parse(`{{.Company}} {{.Keywords}} announcement`)),
	types.SourceCompanySite:         template.Must(template.New("site").Parse(`{{.Keywords}}`)),
	types.SourceProfessionalNetwork: template.Must(template.New("pro").Parse(`{{.Company}} {{.Keywords}}`)),
	types.SourceWebSearch:           template.Must(template.New("web").Parse(`{{.Company}} {{.Keywords}}`)),
	types.SourceJobBoard:            template.Must(template.New("jobs").Parse(`{{.Keywords}} jobs`)),
}

// variantTemplates pad a short model answer toward the depth's query count.
// They are used in order, one per source per pass.
var variantTemplates = map[types.SourceName][]*template.Template{
	types.SourceNews: {
		template.Must(template.New("news-1").Parse(`{{.Company}} {{.Keywords}}`)),
		template.Must(template.New("news-2").Parse(`{{.Company}} {{.Keywords}} partnership funding`)),
	},
	types.SourceCompanySite: {
		template.Must(template.New("site-1").Parse(`{{.Keywords}} customers`)),
		template.Must(template.New("site-2").Parse(`{{.Keywords}} product`)),
	},
	types.SourceProfessionalNetwork: {
		template.Must(template.New("pro-1").Parse(`{{.Company}} {{.Keywords}} team`)),
		template.Must(template.New("pro-2").Parse(`{{.Company}} {{.Keywords}} leadership`)),
	},
	types.SourceWebSearch: {
		template.Must(template.New("web-1").Parse(`{{.Company}} {{.Keywords}} review`)),
		template.Must(template.New("web-2").Parse(`{{.Company}} {{.Keywords}} case study`)),
	},
	types.SourceJobBoard: {
		template.Must(template.New("jobs-1").Parse(`{{.Keywords}} engineer`)),
		template.Must(template.New("jobs-2").Parse(`{{.Keywords}} careers`)),
	},
}

// Strategist generates queries with an optional language model.
type Strategist struct {
	completer llm.Completer
	caller    *resilient.Caller
	sources   []types.SourceName
	log       *zap.Logger
}

// New returns a Strategist targeting sources. completer may be nil, in which
// case every call returns the templated minimal set.
func New(completer llm.Completer, caller *resilient.Caller, sources []types.SourceName, log *zap.Logger) *Strategist {
	if log == nil {
		log = zap.NewNop()
	}
	return &Strategist{completer: completer, caller: caller, sources: sources, log: log}
}

type llmQueries struct {
	Queries []struct {
		Text      string  `json:"text"`
		Source    string  `json:"source"`
		Relevance float64 `json:"relevance"`
	} `json:"queries"`
}

// Generate returns the round-0 queries for domain. It never fails: without a
// model, or when the model call fails or returns garbage, it returns one
// templated query per configured source.
func (s *Strategist) Generate(ctx context.Context, goal, domain string, depth types.Depth) []types.Query {
	if s.completer == nil || s.caller == nil {
		return s.Fallback(goal, domain)
	}

	prompt, err := s.renderPrompt(goal, domain, depth.QueryCount())
	if err != nil {
		s.log.Warn("rendering strategy prompt", zap.Error(err))
		return s.Fallback(goal, domain)
	}

	parsed, fail := resilient.Do(ctx, s.caller, "llm", func(actx context.Context) (llmQueries, error) {
		text, err := s.completer.Complete(actx, prompt)
		if err != nil {
			return llmQueries{}, err
		}
		var out llmQueries
		err = llm.DecodeJSON(text, &out)
		return out, err
	})
	if fail != nil {
		s.log.Info("query strategist fell back to templates",
			zap.String("domain", domain),
			zap.String("kind", string(fail.Kind)),
			zap.Error(fail.Err))
		return s.Fallback(goal, domain)
	}

	var queries []types.Query
	seen := make(map[string]struct{})
	for _, q := range parsed.Queries {
		text := strings.TrimSpace(q.Text)
		src, ok := types.ParseSourceName(q.Source)
		if text == "" || !ok || !s.configured(src) {
			continue
		}
		key := queryKey(src, text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, types.Query{
			Text:              text,
			TargetSource:      src,
			ExpectedRelevance: clamp01(q.Relevance),
		})
	}
	if len(queries) == 0 {
		s.log.Info("query strategist returned no usable queries", zap.String("domain", domain))
		return s.Fallback(goal, domain)
	}

	covered := make(map[types.SourceName]bool)
	for _, q := range queries {
		covered[q.TargetSource] = true
	}
	for _, q := range s.Fallback(goal, domain) {
		if !covered[q.TargetSource] {
			queries = append(queries, q)
		}
	}
	queries = s.pad(queries, goal, domain, depth.QueryCount())
	return trimToCount(queries, depth.QueryCount())
}

// pad appends templated variants, one source at a time, until qs holds n
// queries or the variants run out.
func (s *Strategist) pad(qs []types.Query, goal, domain string, n int) []types.Query {
	seen := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		seen[queryKey(q.TargetSource, q.Text)] = struct{}{}
	}
	data := templateData(goal, domain)
	for pass := 0; len(qs) < n; pass++ {
		more := false
		for _, src := range s.sources {
			vs := variantTemplates[src]
			if pass >= len(vs) || len(qs) >= n {
				continue
			}
			more = true
			text, ok := render(vs[pass], data)
			if !ok {
				continue
			}
			key := queryKey(src, text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			qs = append(qs, types.Query{Text: text, TargetSource: src, ExpectedRelevance: variantRelevance})
		}
		if !more {
			break
		}
	}
	return qs
}

// Fallback returns one templated query per configured source.
func (s *Strategist) Fallback(goal, domain string) []types.Query {
	data := templateData(goal, domain)
	var out []types.Query
	for _, src := range s.sources {
		tmpl, ok := fallbackTemplates[src]
		if !ok {
			continue
		}
		text, ok := render(tmpl, data)
		if !ok {
			continue
		}
		out = append(out, types.Query{Text: text, TargetSource: src, ExpectedRelevance: fallbackRelevance})
	}
	return out
}

func render(tmpl *template.Template, data fallbackData) (string, bool) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", false
	}
	text := strings.Join(strings.Fields(buf.String()), " ")
	return text, text != ""
}

func queryKey(src types.SourceName, text string) string {
	return string(src) + "\x00" + keywords.Normalize(text)
}

func (s *Strategist) configured(src types.SourceName) bool {
	for _, c := range s.sources {
		if c == src {
			return true
		}
	}
	return false
}

func (s *Strategist) renderPrompt(goal, domain string, count int) (string, error) {
	names := make([]string, len(s.sources))
	for i, n := range s.sources {
		names[i] = string(n)
	}
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, struct {
		Count   int
		Goal    string
		Company string
		Domain  string
		Sources string
	}{count, goal, types.CompanyName(domain), domain, strings.Join(names, ", ")})
	return buf.String(), err
}

type fallbackData struct {
	Company  string
	Domain   string
	Goal     string
	Keywords string
}

func templateData(goal, domain string) fallbackData {
	kw := keywords.Tokens(goal)
	if len(kw) > 5 {
		kw = kw[:5]
	}
	k := strings.Join(kw, " ")
	if k == "" {
		k = strings.TrimSpace(goal)
	}
	return fallbackData{Company: types.CompanyName(domain), Domain: domain, Goal: goal, Keywords: k}
}

// trimToCount keeps at most n queries, highest relevance first, while
// keeping each source's best query when n allows.
func trimToCount(qs []types.Query, n int) []types.Query {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].ExpectedRelevance > qs[j].ExpectedRelevance })
	if len(qs) <= n {
		return qs
	}
	keep := make([]bool, len(qs))
	kept := 0
	seenSrc := make(map[types.SourceName]bool)
	for i, q := range qs {
		if kept < n && !seenSrc[q.TargetSource] {
			seenSrc[q.TargetSource] = true
			keep[i] = true
			kept++
		}
	}
	for i := range qs {
		if kept >= n {
			break
		}
		if !keep[i] {
			keep[i] = true
			kept++
		}
	}
	out := make([]types.Query, 0, n)
	for i, q := range qs {
		if keep[i] {
			out = append(out, q)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
