// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"math"
	"time"

	"github.com/pdiddy/gtm-research/internal/keywords"
)

const (
	weightKeywords = 0.6
	weightRecency  = 0.25
	weightPosition = 0.15

	freshWindow = 30 * 24 * time.Hour
	staleAfter  = 2 * 365 * 24 * time.Hour
)

// Relevance scores a hit in [0, 1] from keyword overlap with terms, recency,
// and its rank in the backend's result list.
func Relevance(terms []string, h Hit, rank int, now time.Time) float64 {
	kw := keywords.HitRatio(terms, h.Title+" "+h.Snippet)
	pos := math.Max(0, 1-0.1*float64(rank))
	score := weightKeywords*kw + weightRecency*recency(h.PublishedAt, now) + weightPosition*pos
	return math.Min(1, math.Max(0, score))
}

// recency is 1 within the fresh window, decays linearly to 0 at two years,
// and is 0.5 when the publish date is unknown.
func recency(published, now time.Time) float64 {
	if published.IsZero() {
		return 0.5
	}
	age := now.Sub(published)
	switch {
	case age <= freshWindow:
		return 1
	case age >= staleAfter:
		return 0
	}
	return 1 - float64(age-freshWindow)/float64(staleAfter-freshWindow)
}

func queryTerms(goal []string, query string) []string {
	return keywords.Merge(goal, keywords.Tokens(query))
}
