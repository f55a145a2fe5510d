// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/gtm-research/internal/httputil"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// tavilyAPIBase is the Tavily search endpoint.
const tavilyAPIBase = "https://api.tavily.com/search"

// TavilyBackend runs general web searches through Tavily.
type TavilyBackend struct {
	APIKey    string
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// Name returns the channel identifier.
func (b *TavilyBackend) Name() types.SourceName { return types.SourceWebSearch }

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Fetch searches for "<company> <query>".
func (b *TavilyBackend) Fetch(ctx context.Context, domain, query string, limit int) ([]Hit, error) {
	base := b.BaseURL
	if base == "" {
		base = tavilyAPIBase
	}
	body, err := json.Marshal(tavilyRequest{
		Query:       types.CompanyName(domain) + " " + query,
		MaxResults:  limit,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	var tr tavilyResponse
	if err := httputil.DoJSON(ctx, b.Client, req, "Tavily", &tr); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(tr.Results))
	for _, r := range tr.Results {
		h := Hit{Title: r.Title, Snippet: r.Content, URL: r.URL}
		if r.PublishedDate != "" {
			for _, layout := range []string{time.RFC3339, time.RFC1123, "2006-01-02"} {
				if t, err := time.Parse(layout, r.PublishedDate); err == nil {
					h.PublishedAt = t
					break
				}
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}
