// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine writes follow-up queries aimed at the sources where a
// company's evidence is missing or thin.
package refine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/gtm-research/internal/keywords"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// DefaultTemplates are the per-source follow-up query templates.
var DefaultTemplates = map[types.SourceName]string{
	types.SourceNews:                `{{.Company}} {{.Signal}} news`,
	types.SourceCompanySite:         `{{.Signal}}`,
	types.SourceProfessionalNetwork: `{{.Company}} {{.Signal}} team`,
	types.SourceWebSearch:           `{{.Company}} {{.Signal}}`,
	types.SourceJobBoard:            `{{.Signal}} jobs`,
}

// relevanceDecay lowers the expected relevance of each successive refinement
// round.
const relevanceDecay = 0.1

// Refiner produces gap-targeted queries.
type Refiner struct {
	templates     map[types.SourceName]*template.Template
	queriesPerGap int
}

// TemplateData is the value each refinement template is executed with.
type TemplateData struct {
	Company string
	Domain  string
	Goal    string
	Signal  string
}

// New compiles the templates, overriding DefaultTemplates with cfg.Templates.
func New(cfg types.RefinerConfig) (*Refiner, error) {
	r := &Refiner{
		templates:     make(map[types.SourceName]*template.Template),
		queriesPerGap: cfg.QueriesPerGap,
	}
	if r.queriesPerGap <= 0 {
		r.queriesPerGap = 2
	}
	merged := make(map[types.SourceName]string, len(DefaultTemplates))
	for k, v := range DefaultTemplates {
		merged[k] = v
	}
	for k, v := range cfg.Templates {
		merged[k] = v
	}
	for name, text := range merged {
		t, err := template.New(string(name)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing refinement template for %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Refine returns follow-up queries for gaps, tagged with the next round
// number. It returns nil once state has used the round budget. Queries whose
// normalized text was already issued to the same source are skipped.
func (r *Refiner) Refine(state *types.CompanyState, gaps []types.SourceName, budget int) []types.Query {
	if state.RefinementRoundsUsed >= budget || len(gaps) == 0 {
		return nil
	}
	round := state.RefinementRoundsUsed + 1
	signals := weakSignals(state)

	issued := make(map[string]struct{}, len(state.Queries))
	for _, q := range state.Queries {
		issued[issuedKey(q.TargetSource, q.Text)] = struct{}{}
	}

	data := TemplateData{
		Company: types.CompanyName(state.Domain),
		Domain:  state.Domain,
		Goal:    state.Goal,
	}
	relevance := 0.6 - relevanceDecay*float64(round-1)
	if relevance < 0.1 {
		relevance = 0.1
	}

	var out []types.Query
	for _, src := range gaps {
		tmpl, ok := r.templates[src]
		if !ok {
			continue
		}
		made := 0
		for _, sig := range signals {
			if made >= r.queriesPerGap {
				break
			}
			data.Signal = sig
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, data); err != nil {
				continue
			}
			text := strings.Join(strings.Fields(buf.String()), " ")
			if text == "" {
				continue
			}
			key := issuedKey(src, text)
			if _, dup := issued[key]; dup {
				continue
			}
			issued[key] = struct{}{}
			out = append(out, types.Query{
				Text:              text,
				TargetSource:      src,
				ExpectedRelevance: relevance,
				GenerationRound:   round,
			})
			made++
		}
	}
	return out
}

// weakSignals ranks terms from the evidence gathered so far, excluding the
// goal's own words and the company name. With no evidence terms it falls
// back to goal keywords. The goal keyword phrase is always appended last so
// every gap has at least one candidate.
func weakSignals(state *types.CompanyState) []string {
	goal := keywords.Tokens(state.Goal)
	company := keywords.Tokens(types.CompanyName(state.Domain))

	texts := make([]string, 0, len(state.Evidence))
	for _, e := range state.Evidence {
		texts = append(texts, e.Title+" "+e.Snippet)
	}
	top := keywords.Top(texts, keywords.Merge(goal, company), 4)

	goalPhrase := strings.Join(firstN(goal, 3), " ")
	var signals []string
	for _, t := range top {
		if goalPhrase != "" {
			signals = append(signals, goalPhrase+" "+t)
		} else {
			signals = append(signals, t)
		}
	}
	if len(signals) == 0 {
		for _, g := range goal {
			signals = append(signals, g)
		}
	}
	if goalPhrase != "" {
		signals = append(signals, goalPhrase)
	}
	return signals
}

func issuedKey(src types.SourceName, text string) string {
	return string(src) + "\x00" + keywords.Normalize(text)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
