// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the gtm-research pipeline:
// queries, evidence, per-source outcomes, per-company research state, synthesis
// results, and the request/response/event shapes exchanged with callers.
//
// See DESIGN.md § Data Model.
package types

import (
	"strings"
	"time"
)

// SourceName identifies an independent information channel.
type SourceName string

const (
	SourceNews                SourceName = "news"
	SourceCompanySite         SourceName = "company_site"
	SourceProfessionalNetwork SourceName = "professional_network"
	SourceWebSearch           SourceName = "web_search"
	SourceJobBoard            SourceName = "job_board"
)

// AllSources lists every channel the pipeline knows how to query, in the
// order they are reported.
var AllSources = []SourceName{
	SourceNews,
	SourceCompanySite,
	SourceProfessionalNetwork,
	SourceWebSearch,
	SourceJobBoard,
}

// ParseSourceName returns the SourceName for s, accepting a few common aliases.
func ParseSourceName(s string) (SourceName, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "news":
		return SourceNews, true
	case "company_site", "company-site", "site", "website":
		return SourceCompanySite, true
	case "professional_network", "professional-network", "linkedin":
		return SourceProfessionalNetwork, true
	case "web_search", "web-search", "web":
		return SourceWebSearch, true
	case "job_board", "job-board", "jobs":
		return SourceJobBoard, true
	}
	return "", false
}

// Query is a single search to run against one source (or every source when
// TargetSource is empty). Queries are values and never change once created.
type Query struct {
	// Text is the search text as sent to the source, before any source scoping.
	Text string `json:"text" yaml:"text"`

	// TargetSource restricts the query to one channel. Empty means all channels.
	TargetSource SourceName `json:"target_source,omitempty" yaml:"target_source,omitempty"`

	// ExpectedRelevance is the strategist's estimate in [0, 1].
	ExpectedRelevance float64 `json:"expected_relevance" yaml:"expected_relevance"`

	// GenerationRound is 0 for initial queries and n for the n-th refinement round.
	GenerationRound int `json:"generation_round" yaml:"generation_round"`
}

// EvidenceItem is one retrieved fact attributable to a single source and query.
type EvidenceItem struct {
	Source       SourceName `json:"source" yaml:"source"`
	QueryText    string     `json:"query_text" yaml:"query_text"`
	Title        string     `json:"title" yaml:"title"`
	Snippet      string     `json:"snippet" yaml:"snippet"`
	URL          string     `json:"url" yaml:"url"`
	PublishedAt  time.Time  `json:"published_at,omitzero" yaml:"published_at,omitempty"`
	RetrievedAt  time.Time  `json:"retrieved_at" yaml:"retrieved_at"`
	RawRelevance float64    `json:"raw_relevance" yaml:"raw_relevance"`
}

// ErrorKind classifies a failed external call.
type ErrorKind string

const (
	ErrorTimeout     ErrorKind = "timeout"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorUnparseable ErrorKind = "unparseable"
	ErrorUnknown     ErrorKind = "unknown"
)

// SourceOutcome records one (domain, query, source) execution attempt.
type SourceOutcome struct {
	Source    SourceName     `json:"source" yaml:"source"`
	Domain    string         `json:"domain" yaml:"domain"`
	QueryText string         `json:"query_text" yaml:"query_text"`
	Succeeded bool           `json:"succeeded" yaml:"succeeded"`
	Evidence  []EvidenceItem `json:"evidence,omitempty" yaml:"evidence,omitempty"`

	// ErrorKind and Error are set only when Succeeded is false.
	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`

	Latency time.Duration `json:"latency" yaml:"latency"`

	// Cached reports that the evidence came from the evidence cache.
	Cached bool `json:"cached,omitempty" yaml:"cached,omitempty"`

	// Attempts is the number of external calls made (0 when cached).
	Attempts int `json:"attempts" yaml:"attempts"`
}
