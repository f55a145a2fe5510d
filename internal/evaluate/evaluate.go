// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evaluate scores a company's accumulated evidence and decides
// whether another refinement round is worth running.
//
// Each source that answered at least once scores
//
//	score(n) = cap - (cap - floor) * exp(-n / saturation)
//
// where n is the source's deduplicated evidence count. Company confidence
// is the mean over those sources, or the floor when none answered, so it
// always lies in [floor, cap).
package evaluate

import (
	"math"

	"github.com/pdiddy/gtm-research/pkg/types"
)

// SourceScore is one source's contribution to confidence.
type SourceScore struct {
	Source   types.SourceName
	Evidence int
	Score    float64

	// Included is false when every call to the source failed.
	Included bool
}

// Evaluation is the result of scoring one company.
type Evaluation struct {
	Confidence float64
	PerSource  map[types.SourceName]SourceScore

	// Gaps lists configured sources that are missing, failed, or thin, in
	// configured order.
	Gaps []types.SourceName
}

// Evaluator scores company states against a fixed set of configured sources.
type Evaluator struct {
	cfg     types.EvaluatorConfig
	sources []types.SourceName
}

// New returns an Evaluator. Zero config fields take the package defaults;
// Cap and Floor are clamped so no score exceeds types.MaxConfidence.
func New(cfg types.EvaluatorConfig, sources []types.SourceName) *Evaluator {
	d := types.DefaultPipelineConfig().Evaluator
	if cfg.Floor <= 0 {
		cfg.Floor = d.Floor
	}
	if cfg.Cap <= 0 || cfg.Cap < cfg.Floor {
		cfg.Cap = d.Cap
	}
	cfg.Clamp()
	if cfg.Saturation <= 0 {
		cfg.Saturation = d.Saturation
	}
	if cfg.MinEvidencePerSource <= 0 {
		cfg.MinEvidencePerSource = d.MinEvidencePerSource
	}
	return &Evaluator{cfg: cfg, sources: sources}
}

// Floor returns the confidence of a company with no usable source.
func (e *Evaluator) Floor() float64 { return e.cfg.Floor }

// Score returns the confidence contribution of a source with n items.
func (e *Evaluator) Score(n int) float64 {
	if n < 0 {
		n = 0
	}
	return e.cfg.Cap - (e.cfg.Cap-e.cfg.Floor)*math.Exp(-float64(n)/e.cfg.Saturation)
}

// Evaluate scores state. It does not modify it.
func (e *Evaluator) Evaluate(state *types.CompanyState) Evaluation {
	ev := Evaluation{PerSource: make(map[types.SourceName]SourceScore)}

	var sum float64
	var included int
	for name, t := range state.Tallies {
		ss := SourceScore{Source: name, Evidence: t.Evidence}
		if t.Successes > 0 {
			ss.Included = true
			ss.Score = e.Score(t.Evidence)
			sum += ss.Score
			included++
		}
		ev.PerSource[name] = ss
	}

	if included == 0 {
		ev.Confidence = e.cfg.Floor
	} else {
		ev.Confidence = sum / float64(included)
	}

	for _, name := range e.sources {
		ss, seen := ev.PerSource[name]
		if !seen || !ss.Included || ss.Evidence < e.cfg.MinEvidencePerSource {
			ev.Gaps = append(ev.Gaps, name)
		}
	}
	return ev
}

// NextStatus decides where an evaluated company goes next. A company with
// no successful source call fails. Otherwise it refines while confidence is
// below threshold and rounds remain, and is ready to synthesize once either
// condition stops holding.
func NextStatus(state *types.CompanyState, ev Evaluation, threshold float64, budget int) types.Status {
	if !state.AnySucceeded() {
		return types.StatusFailed
	}
	if ev.Confidence < threshold && state.RefinementRoundsUsed < budget {
		return types.StatusRefining
	}
	return types.StatusSynthesized
}
