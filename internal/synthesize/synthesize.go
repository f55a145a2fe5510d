// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesize merges a company's evidence into the final summary.
package synthesize

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/gtm-research/internal/keywords"
	"github.com/pdiddy/gtm-research/internal/llm"
	"github.com/pdiddy/gtm-research/internal/resilient"
	"github.com/pdiddy/gtm-research/pkg/types"
)

var promptTmpl = template.Must(template.New("synthesis").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`You summarize go-to-market research about one company.

Research goal: {{.Goal}}
Company: {{.Company}} ({{.Domain}})

Evidence, most relevant first:
{{range $i, $e := .Evidence}}{{inc $i}}. [{{$e.Source}}] {{$e.Title}}: {{$e.Snippet}} ({{$e.URL}})
{{end}}
Using only this evidence, write a short summary answering the research goal and list the concrete signals you found.
Respond with a JSON object only, in this shape:
{"summary": "two to four sentences", "signals_found": ["signal", "signal"]}
`))

// Synthesizer produces SynthesisResults. It never fails: when the model is
// missing, errors, or returns an empty summary, a templated summary is used.
type Synthesizer struct {
	completer llm.Completer
	caller    *resilient.Caller
	cfg       types.SynthesisConfig
	floor     float64
	log       *zap.Logger
}

// New returns a Synthesizer. completer may be nil. floor is reported as the
// confidence of companies with no usable evidence.
func New(completer llm.Completer, caller *resilient.Caller, cfg types.SynthesisConfig, floor float64, log *zap.Logger) *Synthesizer {
	d := types.DefaultPipelineConfig().Synthesis
	if cfg.TopN <= 0 {
		cfg.TopN = d.TopN
	}
	if cfg.MaxPromptItems <= 0 {
		cfg.MaxPromptItems = d.MaxPromptItems
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{completer: completer, caller: caller, cfg: cfg, floor: floor, log: log}
}

type llmSynthesis struct {
	Summary      string   `json:"summary"`
	SignalsFound []string `json:"signals_found"`
}

// Synthesize builds the result for state. It reads state but does not
// change it; the orchestrator owns status transitions.
func (s *Synthesizer) Synthesize(ctx context.Context, state *types.CompanyState) types.SynthesisResult {
	if !state.AnySucceeded() {
		return types.SynthesisResult{
			Domain:           state.Domain,
			Summary:          fmt.Sprintf("No evidence could be retrieved for %s; every source call failed.", state.Domain),
			SignalsFound:     []string{},
			Confidence:       s.floor,
			Status:           types.StatusFailed,
			EvidenceSources:  []types.SourceName{},
			RefinementRounds: state.RefinementRoundsUsed,
		}
	}

	evidence := Deduplicate(state.Evidence)
	res := types.SynthesisResult{
		Domain:           state.Domain,
		EvidenceCount:    len(evidence),
		Confidence:       state.Confidence,
		Status:           types.StatusSynthesized,
		EvidenceSources:  state.EvidenceSources(),
		RefinementRounds: state.RefinementRoundsUsed,
		TopEvidence:      firstN(evidence, s.cfg.TopN),
	}
	if res.EvidenceSources == nil {
		res.EvidenceSources = []types.SourceName{}
	}

	if out, ok := s.fromModel(ctx, state, evidence); ok {
		res.Summary = out.Summary
		res.SignalsFound = cleanSignals(out.SignalsFound)
		return res
	}
	res.Summary = s.fallbackSummary(state, evidence)
	res.SignalsFound = s.fallbackSignals(state.Goal, evidence)
	return res
}

func (s *Synthesizer) fromModel(ctx context.Context, state *types.CompanyState, evidence []types.EvidenceItem) (llmSynthesis, bool) {
	if s.completer == nil || s.caller == nil || len(evidence) == 0 {
		return llmSynthesis{}, false
	}
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, struct {
		Goal     string
		Company  string
		Domain   string
		Evidence []types.EvidenceItem
	}{state.Goal, types.CompanyName(state.Domain), state.Domain, firstN(evidence, s.cfg.MaxPromptItems)})
	if err != nil {
		s.log.Warn("rendering synthesis prompt", zap.Error(err))
		return llmSynthesis{}, false
	}
	prompt := buf.String()

	out, fail := resilient.Do(ctx, s.caller, "llm", func(actx context.Context) (llmSynthesis, error) {
		text, err := s.completer.Complete(actx, prompt)
		if err != nil {
			return llmSynthesis{}, err
		}
		var o llmSynthesis
		err = llm.DecodeJSON(text, &o)
		return o, err
	})
	if fail != nil {
		s.log.Info("synthesis fell back to template",
			zap.String("domain", state.Domain),
			zap.String("kind", string(fail.Kind)),
			zap.Error(fail.Err))
		return llmSynthesis{}, false
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		s.log.Info("synthesis returned an empty summary", zap.String("domain", state.Domain))
		return llmSynthesis{}, false
	}
	return out, true
}

func (s *Synthesizer) fallbackSummary(state *types.CompanyState, evidence []types.EvidenceItem) string {
	company := types.CompanyName(state.Domain)
	if len(evidence) == 0 {
		return fmt.Sprintf("No evidence about %q was found for %s (%s).", state.Goal, company, state.Domain)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %d evidence item(s) from %d source(s) for %q.",
		company, state.Domain, len(evidence), len(state.EvidenceSources()), state.Goal)
	b.WriteString(" Top findings:")
	for i, e := range firstN(evidence, s.cfg.TopN) {
		text := e.Title
		if text == "" {
			text = e.Snippet
		}
		fmt.Fprintf(&b, " %d) %s [%s]", i+1, strings.TrimSpace(text), e.Source)
		if i < len(evidence)-1 && i < s.cfg.TopN-1 {
			b.WriteString(";")
		}
	}
	return b.String()
}

// fallbackSignals reports goal keywords and vocabulary terms that appear in
// the evidence, in that order.
func (s *Synthesizer) fallbackSignals(goal string, evidence []types.EvidenceItem) []string {
	words := make(map[string]struct{})
	for _, e := range evidence {
		for _, w := range strings.Fields(keywords.Normalize(e.Title + " " + e.Snippet)) {
			words[w] = struct{}{}
		}
	}
	var vocab []string
	for _, v := range s.cfg.SignalVocabulary {
		vocab = append(vocab, keywords.Normalize(v))
	}
	signals := []string{}
	for _, term := range keywords.Merge(keywords.Tokens(goal), vocab) {
		if term == "" {
			continue
		}
		if _, ok := words[term]; ok {
			signals = append(signals, term)
		}
	}
	return signals
}

// Deduplicate drops items whose normalized URL and snippet repeat an earlier
// item, then orders the rest by relevance, highest first, with ties broken by
// URL so the order does not depend on arrival order. The input is not
// modified.
func Deduplicate(items []types.EvidenceItem) []types.EvidenceItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]types.EvidenceItem, 0, len(items))
	for _, it := range items {
		k := types.EvidenceKey(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RawRelevance != b.RawRelevance {
			return a.RawRelevance > b.RawRelevance
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Snippet < b.Snippet
	})
	return out
}

func cleanSignals(in []string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func firstN(items []types.EvidenceItem, n int) []types.EvidenceItem {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}
