// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pdiddy/gtm-research/internal/httputil"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// cseAPIBase is the Google Custom Search JSON API endpoint.
const cseAPIBase = "https://www.googleapis.com/customsearch/v1"

// cseMaxNum is the largest page the Custom Search API returns.
const cseMaxNum = 10

// CSEBackend runs a site-scoped Google Custom Search. The professional
// network and job board channels differ only in how they scope the query.
type CSEBackend struct {
	name      types.SourceName
	scope     func(domain, query string) string
	APIKey    string
	EngineID  string
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// NewProfessionalNetwork searches company pages on LinkedIn.
func NewProfessionalNetwork(apiKey, engineID, baseURL string, client *http.Client, ua string) *CSEBackend {
	return &CSEBackend{
		name: types.SourceProfessionalNetwork,
		scope: func(domain, query string) string {
			return "site:linkedin.com/company " + types.CompanyName(domain) + " " + query
		},
		APIKey: apiKey, EngineID: engineID, BaseURL: baseURL, Client: client, UserAgent: ua,
	}
}

// NewJobBoard searches careers pages on the company's own domain.
func NewJobBoard(apiKey, engineID, baseURL string, client *http.Client, ua string) *CSEBackend {
	return &CSEBackend{
		name: types.SourceJobBoard,
		scope: func(domain, query string) string {
			return "site:" + domain + " careers " + query
		},
		APIKey: apiKey, EngineID: engineID, BaseURL: baseURL, Client: client, UserAgent: ua,
	}
}

// Name returns the channel identifier.
func (b *CSEBackend) Name() types.SourceName { return b.name }

type cseResponse struct {
	Items []cseItem `json:"items"`
}

type cseItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Fetch runs the scoped search and returns up to limit hits.
func (b *CSEBackend) Fetch(ctx context.Context, domain, query string, limit int) ([]Hit, error) {
	base := b.BaseURL
	if base == "" {
		base = cseAPIBase
	}
	if limit <= 0 || limit > cseMaxNum {
		limit = cseMaxNum
	}
	params := url.Values{
		"key": {b.APIKey},
		"cx":  {b.EngineID},
		"q":   {b.scope(domain, query)},
		"num": {strconv.Itoa(limit)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	var cr cseResponse
	if err := httputil.DoJSON(ctx, b.Client, req, "Google CSE", &cr); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(cr.Items))
	for _, it := range cr.Items {
		hits = append(hits, Hit{Title: it.Title, Snippet: it.Snippet, URL: it.Link})
	}
	return hits, nil
}
