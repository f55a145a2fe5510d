// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pdiddy/gtm-research/internal/httputil"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// newsAPIBase is the NewsAPI article search endpoint.
const newsAPIBase = "https://newsapi.org/v2/everything"

// NewsBackend searches recent articles through NewsAPI.
type NewsBackend struct {
	APIKey    string
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// Name returns the channel identifier.
func (b *NewsBackend) Name() types.SourceName { return types.SourceNews }

type newsResponse struct {
	Status   string        `json:"status"`
	Articles []newsArticle `json:"articles"`
}

type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Fetch searches for "<domain> <query>" sorted by relevancy.
func (b *NewsBackend) Fetch(ctx context.Context, domain, query string, limit int) ([]Hit, error) {
	base := b.BaseURL
	if base == "" {
		base = newsAPIBase
	}
	params := url.Values{
		"q":        {domain + " " + query},
		"sortBy":   {"relevancy"},
		"language": {"en"},
		"pageSize": {strconv.Itoa(limit)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	var nr newsResponse
	if err := httputil.DoJSON(ctx, b.Client, req, "NewsAPI", &nr); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(nr.Articles))
	for _, a := range nr.Articles {
		if a.Title == "" && a.Description == "" {
			continue
		}
		h := Hit{Title: a.Title, Snippet: a.Description, URL: a.URL}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			h.PublishedAt = t
		}
		hits = append(hits, h)
	}
	return hits, nil
}
