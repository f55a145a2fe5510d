// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionForwardOnly(t *testing.T) {
	s := NewCompanyState("acme.com", "goal")
	require.NoError(t, s.Transition(StatusEvaluated))
	require.NoError(t, s.Transition(StatusRefining))
	require.NoError(t, s.Transition(StatusRefining))
	require.NoError(t, s.Transition(StatusSynthesized))

	assert.Error(t, s.Transition(StatusRefining))
	assert.Error(t, s.Transition(StatusPending))
	assert.True(t, s.Status.IsTerminal())
}

func TestTransitionRejectsSkippingEvaluation(t *testing.T) {
	s := NewCompanyState("acme.com", "goal")
	assert.Error(t, s.Transition(StatusRefining))
	assert.Error(t, s.Transition(StatusSynthesized))
	assert.NoError(t, s.Transition(StatusFailed))
}

func TestMergeDeduplicatesAndTallies(t *testing.T) {
	s := NewCompanyState("acme.com", "goal")
	item := EvidenceItem{Source: SourceNews, URL: "https://acme.com/a/", Snippet: "Acme  raises money"}
	sameItem := EvidenceItem{Source: SourceWebSearch, URL: "HTTPS://ACME.COM/a", Snippet: "acme raises money"}

	added := s.Merge([]SourceOutcome{
		{Source: SourceNews, Succeeded: true, Evidence: []EvidenceItem{item}},
		{Source: SourceWebSearch, Succeeded: true, Evidence: []EvidenceItem{sameItem}},
		{Source: SourceJobBoard, Succeeded: false, ErrorKind: ErrorTimeout},
	})

	assert.Equal(t, 1, added)
	assert.Len(t, s.Evidence, 1)
	assert.Equal(t, 1, s.Tallies[SourceNews].Evidence)
	assert.Equal(t, 0, s.Tallies[SourceWebSearch].Evidence)
	assert.True(t, s.Tallies[SourceJobBoard].AllFailed())
	assert.Equal(t, []SourceName{SourceNews}, s.EvidenceSources())
	assert.True(t, s.AnySucceeded())

	// Re-merging the same outcome adds nothing.
	assert.Equal(t, 0, s.Merge([]SourceOutcome{{Source: SourceNews, Succeeded: true, Evidence: []EvidenceItem{item}}}))
	assert.Len(t, s.Evidence, 1)
}

func TestNormalizeRequest(t *testing.T) {
	cfg := DefaultPipelineConfig()

	tests := []struct {
		name    string
		req     ResearchRequest
		wantErr string
		check   func(t *testing.T, r ResearchRequest)
	}{
		{
			name: "fills defaults and normalizes domains",
			req:  ResearchRequest{Goal: " find hiring ", Domains: []string{"https://www.Stripe.com/about", "acme.io"}},
			check: func(t *testing.T, r ResearchRequest) {
				assert.Equal(t, "find hiring", r.Goal)
				assert.Equal(t, []string{"stripe.com", "acme.io"}, r.Domains)
				assert.Equal(t, DepthStandard, r.Depth)
				require.NotNil(t, r.ConfidenceThreshold)
				assert.InDelta(t, 0.8, *r.ConfidenceThreshold, 1e-9)
				assert.Equal(t, 4, r.MaxParallel)
			},
		},
		{name: "empty goal", req: ResearchRequest{Domains: []string{"a.com"}}, wantErr: "goal is empty"},
		{name: "no domains", req: ResearchRequest{Goal: "g"}, wantErr: "no company domains"},
		{name: "bad depth", req: ResearchRequest{Goal: "g", Domains: []string{"a.com"}, Depth: "deep"}, wantErr: "invalid depth"},
		{
			name: "explicit zero threshold is kept",
			req:  ResearchRequest{Goal: "g", Domains: []string{"a.com"}, ConfidenceThreshold: threshold(0)},
			check: func(t *testing.T, r ResearchRequest) {
				assert.Zero(t, *r.ConfidenceThreshold)
			},
		},
		{name: "threshold out of range", req: ResearchRequest{Goal: "g", Domains: []string{"a.com"}, ConfidenceThreshold: threshold(1.5)}, wantErr: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.req
			err := r.Normalize(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, r)
		})
	}
}

func TestDepthQueryCount(t *testing.T) {
	assert.Equal(t, 8, DepthQuick.QueryCount())
	assert.Equal(t, 10, DepthStandard.QueryCount())
	assert.Equal(t, 12, DepthComprehensive.QueryCount())
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := PipelineConfig{Evaluator: EvaluatorConfig{Threshold: 0.9}}
	cfg.ApplyDefaults()
	assert.InDelta(t, 0.9, cfg.Evaluator.Threshold, 1e-9)
	assert.InDelta(t, 0.95, cfg.Evaluator.Cap, 1e-9)
	assert.Equal(t, 3, cfg.Sources.MaxResults)
	assert.Empty(t, cfg.EnabledSources())
	assert.Len(t, DefaultPipelineConfig().EnabledSources(), 5)
}

func TestApplyDefaultsClampsConfidenceModel(t *testing.T) {
	cfg := PipelineConfig{Evaluator: EvaluatorConfig{Floor: 0.99, Cap: 1.2}}
	cfg.ApplyDefaults()
	assert.InDelta(t, MaxConfidence, cfg.Evaluator.Cap, 1e-9)
	assert.InDelta(t, MaxConfidence, cfg.Evaluator.Floor, 1e-9)

	cfg = PipelineConfig{Evaluator: EvaluatorConfig{Floor: 0.3, Cap: 0.9}}
	cfg.ApplyDefaults()
	assert.InDelta(t, 0.3, cfg.Evaluator.Floor, 1e-9)
	assert.InDelta(t, 0.9, cfg.Evaluator.Cap, 1e-9)
}

func threshold(v float64) *float64 { return &v }
