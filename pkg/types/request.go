// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Depth selects how broad the initial query batch is.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// QueryCount returns the size of the initial query batch for the depth.
func (d Depth) QueryCount() int {
	switch d {
	case DepthQuick:
		return 8
	case DepthComprehensive:
		return 12
	default:
		return 10
	}
}

// ParseDepth validates s, defaulting to standard when empty.
func ParseDepth(s string) (Depth, error) {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case "", DepthStandard:
		return DepthStandard, nil
	case DepthQuick:
		return DepthQuick, nil
	case DepthComprehensive:
		return DepthComprehensive, nil
	}
	return "", fmt.Errorf("invalid depth %q: want quick, standard, or comprehensive", s)
}

// ResearchRequest is the input to one research run.
type ResearchRequest struct {
	Goal        string   `json:"goal" yaml:"goal" mapstructure:"goal"`
	Domains     []string `json:"domains" yaml:"domains" mapstructure:"domains"`
	Depth       Depth    `json:"depth" yaml:"depth" mapstructure:"depth"`
	MaxParallel int      `json:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`

	// ConfidenceThreshold is the confidence below which a company is refined.
	// Nil takes the configured default; an explicit 0 never refines.
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty" mapstructure:"confidence_threshold"`

	// Queries, when set, replaces strategist output for every company.
	Queries []Query `json:"queries,omitempty" yaml:"queries,omitempty" mapstructure:"queries"`
}

// Normalize validates the request and fills defaults from cfg. Domains are
// lower-cased and stripped of scheme, "www." and any path.
func (r *ResearchRequest) Normalize(cfg PipelineConfig) error {
	r.Goal = strings.TrimSpace(r.Goal)
	if r.Goal == "" {
		return fmt.Errorf("research goal is empty")
	}
	if len(r.Domains) == 0 {
		return fmt.Errorf("no company domains given")
	}
	for i, d := range r.Domains {
		nd := NormalizeDomain(d)
		if nd == "" {
			return fmt.Errorf("domain %d (%q) is empty", i, d)
		}
		r.Domains[i] = nd
	}

	depth, err := ParseDepth(string(r.Depth))
	if err != nil {
		return err
	}
	r.Depth = depth

	if r.ConfidenceThreshold == nil {
		t := cfg.Evaluator.Threshold
		r.ConfidenceThreshold = &t
	}
	if t := *r.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("confidence threshold %.2f out of range [0,1]", t)
	}
	if r.MaxParallel <= 0 {
		r.MaxParallel = cfg.Orchestrator.MaxParallel
	}
	return nil
}

// NormalizeDomain reduces a URL or host to a bare lower-case host name.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return ""
	}
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil && u.Host != "" {
			d = u.Host
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, ".")
}

// CompanyName returns a display stem for a domain ("stripe.com" -> "stripe").
func CompanyName(domain string) string {
	host := NormalizeDomain(domain)
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}

// SearchPerformance summarizes throughput and reliability for a run.
type SearchPerformance struct {
	QueriesPerSecond       float64 `json:"queries_per_second" yaml:"queries_per_second"`
	AvgLatencyPerCompanyMS float64 `json:"avg_latency_per_company_ms" yaml:"avg_latency_per_company_ms"`
	CacheHitRate           float64 `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	FailedRequests         int64   `json:"failed_requests" yaml:"failed_requests"`
	TotalExternalCalls     int64   `json:"total_external_calls" yaml:"total_external_calls"`
	PeakParallel           int64   `json:"peak_parallel" yaml:"peak_parallel"`
}

// ResearchResponse is the batch output of one research run.
type ResearchResponse struct {
	ResearchID                string            `json:"research_id" yaml:"research_id"`
	TotalCompanies            int               `json:"total_companies" yaml:"total_companies"`
	SearchStrategiesGenerated int               `json:"search_strategies_generated" yaml:"search_strategies_generated"`
	TotalSearchesExecuted     int               `json:"total_searches_executed" yaml:"total_searches_executed"`
	ProcessingTimeMS          int64             `json:"processing_time_ms" yaml:"processing_time_ms"`
	Results                   []SynthesisResult `json:"results" yaml:"results"`
	SearchPerformance         SearchPerformance `json:"search_performance" yaml:"search_performance"`
}

// EventType names a streaming event.
type EventType string

const (
	EventStart  EventType = "start"
	EventResult EventType = "result"
	EventEnd    EventType = "end"
)

// RunTotals carries the aggregate counters sent with the end event.
type RunTotals struct {
	TotalCompanies            int               `json:"total_companies"`
	SearchStrategiesGenerated int               `json:"search_strategies_generated"`
	TotalSearchesExecuted     int               `json:"total_searches_executed"`
	ProcessingTimeMS          int64             `json:"processing_time_ms"`
	SearchPerformance         SearchPerformance `json:"search_performance"`
}

// Event is one message on the streaming channel. Result events arrive in
// completion order, not submission order.
type Event struct {
	Type       EventType        `json:"type"`
	ResearchID string           `json:"research_id"`
	Seq        uint64           `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	Domain     string           `json:"domain,omitempty"`
	Result     *SynthesisResult `json:"result,omitempty"`
	Totals     *RunTotals       `json:"totals,omitempty"`
}
