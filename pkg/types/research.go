// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Status tracks a company's progress through the research state machine.
type Status string

const (
	StatusPending     Status = "pending"
	StatusEvaluated   Status = "evaluated"
	StatusRefining    Status = "refining"
	StatusSynthesized Status = "synthesized"
	StatusFailed      Status = "failed"
)

// transitions lists the allowed forward moves. Refining may repeat once per
// additional refinement round; nothing ever moves back to an earlier status.
var transitions = map[Status][]Status{
	StatusPending:   {StatusEvaluated, StatusFailed},
	StatusEvaluated: {StatusRefining, StatusSynthesized, StatusFailed},
	StatusRefining:  {StatusRefining, StatusSynthesized, StatusFailed},
}

// CanTransition reports whether a company may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the state machine.
func (s Status) IsTerminal() bool {
	return s == StatusSynthesized || s == StatusFailed
}

// SourceTally counts what one source produced for one company.
type SourceTally struct {
	Attempts  int `json:"attempts" yaml:"attempts"`
	Successes int `json:"successes" yaml:"successes"`
	Failures  int `json:"failures" yaml:"failures"`

	// Evidence is the number of deduplicated items attributed to the source.
	Evidence int `json:"evidence" yaml:"evidence"`
}

// AllFailed reports whether the source was tried and never succeeded.
func (t SourceTally) AllFailed() bool {
	return t.Attempts > 0 && t.Successes == 0
}

// CompanyState is the working state for one company within one request.
// Only the research orchestrator mutates it; evidence is append-only.
type CompanyState struct {
	Domain               string
	Goal                 string
	Queries              []Query
	Evidence             []EvidenceItem
	Confidence           float64
	RefinementRoundsUsed int
	Status               Status
	Tallies              map[SourceName]*SourceTally

	seen map[string]struct{}
}

// NewCompanyState returns a pending state for domain.
func NewCompanyState(domain, goal string) *CompanyState {
	return &CompanyState{
		Domain:  domain,
		Goal:    goal,
		Status:  StatusPending,
		Tallies: make(map[SourceName]*SourceTally),
		seen:    make(map[string]struct{}),
	}
}

// Transition moves the state to next, rejecting backward moves.
func (s *CompanyState) Transition(next Status) error {
	if !CanTransition(s.Status, next) {
		return fmt.Errorf("invalid status transition %s -> %s for %s", s.Status, next, s.Domain)
	}
	s.Status = next
	return nil
}

// AddQueries records queries issued for this company.
func (s *CompanyState) AddQueries(qs []Query) {
	s.Queries = append(s.Queries, qs...)
}

// Merge folds source outcomes into the state. Evidence already present (by
// normalized url+snippet) is skipped. It returns the number of new items.
func (s *CompanyState) Merge(outcomes []SourceOutcome) int {
	added := 0
	for _, o := range outcomes {
		t := s.tally(o.Source)
		t.Attempts++
		if !o.Succeeded {
			t.Failures++
			continue
		}
		t.Successes++
		for _, item := range o.Evidence {
			key := EvidenceKey(item)
			if _, dup := s.seen[key]; dup {
				continue
			}
			s.seen[key] = struct{}{}
			s.Evidence = append(s.Evidence, item)
			t.Evidence++
			added++
		}
	}
	return added
}

func (s *CompanyState) tally(name SourceName) *SourceTally {
	t, ok := s.Tallies[name]
	if !ok {
		t = &SourceTally{}
		s.Tallies[name] = t
	}
	return t
}

// EvidenceSources returns the sources that contributed at least one item, sorted.
func (s *CompanyState) EvidenceSources() []SourceName {
	var out []SourceName
	for name, t := range s.Tallies {
		if t.Evidence > 0 {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AnySucceeded reports whether any source call for the company succeeded.
func (s *CompanyState) AnySucceeded() bool {
	for _, t := range s.Tallies {
		if t.Successes > 0 {
			return true
		}
	}
	return false
}

// EvidenceKey returns the dedup key for an item: a hash of its normalized
// URL and snippet.
func EvidenceKey(item EvidenceItem) string {
	u := strings.TrimRight(strings.ToLower(strings.TrimSpace(item.URL)), "/")
	snippet := strings.Join(strings.Fields(strings.ToLower(item.Snippet)), " ")
	h := sha256.Sum256([]byte(u + "\x00" + snippet))
	return hex.EncodeToString(h[:])
}

// SynthesisResult is the terminal output of the pipeline for one company.
type SynthesisResult struct {
	Domain           string         `json:"domain" yaml:"domain"`
	Summary          string         `json:"summary" yaml:"summary"`
	SignalsFound     []string       `json:"signals_found" yaml:"signals_found"`
	EvidenceCount    int            `json:"evidence_count" yaml:"evidence_count"`
	Confidence       float64        `json:"confidence" yaml:"confidence"`
	Status           Status         `json:"status" yaml:"status"`
	EvidenceSources  []SourceName   `json:"evidence_sources" yaml:"evidence_sources"`
	RefinementRounds int            `json:"refinement_rounds" yaml:"refinement_rounds"`
	TopEvidence      []EvidenceItem `json:"top_evidence,omitempty" yaml:"top_evidence,omitempty"`
}
