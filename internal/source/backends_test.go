// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/gtm-research/internal/httputil"
	"github.com/pdiddy/gtm-research/internal/resilient"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// --- NewsAPI ---

func TestNewsBackendFetch(t *testing.T) {
	var captured *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","articles":[
			{"title":"Acme raises Series C","description":"Funding led by X","url":"https://news/1","publishedAt":"2026-02-01T10:00:00Z"},
			{"title":"","description":"","url":"https://news/empty"},
			{"title":"Acme opens Berlin office","description":"Expansion","url":"https://news/2","publishedAt":"bad-date"}
		]}`)
	}))
	defer ts.Close()

	b := &NewsBackend{APIKey: "nk", BaseURL: ts.URL, Client: ts.Client(), UserAgent: "gtm-research/test"}
	hits, err := b.Fetch(context.Background(), "acme.com", "funding", 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "Acme raises Series C", hits[0].Title)
	assert.Equal(t, "Funding led by X", hits[0].Snippet)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), hits[0].PublishedAt)
	assert.True(t, hits[1].PublishedAt.IsZero())

	q := captured.URL.Query()
	assert.Equal(t, "acme.com funding", q.Get("q"))
	assert.Equal(t, "relevancy", q.Get("sortBy"))
	assert.Equal(t, "en", q.Get("language"))
	assert.Equal(t, "3", q.Get("pageSize"))
	assert.Equal(t, "nk", captured.Header.Get("X-Api-Key"))
	assert.Equal(t, "gtm-research/test", captured.Header.Get("User-Agent"))
}

func TestNewsBackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind types.ErrorKind
	}{
		{name: "rate limited", status: 429, body: `{}`, wantKind: types.ErrorRateLimited},
		{name: "bad key", status: 401, body: `{"status":"error"}`, wantKind: types.ErrorUnknown},
		{name: "malformed json", status: 200, body: `{"articles":[`, wantKind: types.ErrorUnparseable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			b := &NewsBackend{APIKey: "nk", BaseURL: ts.URL, Client: ts.Client()}
			_, err := b.Fetch(context.Background(), "acme.com", "q", 3)
			require.Error(t, err)
			kind, _ := resilient.Classify(err)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

// --- Google Custom Search ---

func cseServer(t *testing.T, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "gk", r.URL.Query().Get("key"))
		assert.Equal(t, "cx1", r.URL.Query().Get("cx"))
		assert.Equal(t, "3", r.URL.Query().Get("num"))
		fmt.Fprint(w, `{"items":[{"title":"Acme | LinkedIn","snippet":"Acme is hiring SREs","link":"https://linkedin.com/company/acme"}]}`)
	}))
}

func TestProfessionalNetworkScope(t *testing.T) {
	var q string
	ts := cseServer(t, &q)
	defer ts.Close()

	b := NewProfessionalNetwork("gk", "cx1", ts.URL, ts.Client(), "")
	hits, err := b.Fetch(context.Background(), "acme.com", "hiring", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "site:linkedin.com/company acme hiring", q)
	assert.Equal(t, "https://linkedin.com/company/acme", hits[0].URL)
	assert.Equal(t, types.SourceProfessionalNetwork, b.Name())
}

func TestJobBoardScope(t *testing.T) {
	var q string
	ts := cseServer(t, &q)
	defer ts.Close()

	b := NewJobBoard("gk", "cx1", ts.URL, ts.Client(), "")
	_, err := b.Fetch(context.Background(), "acme.com", "platform engineer", 3)
	require.NoError(t, err)
	assert.Equal(t, "site:acme.com careers platform engineer", q)
	assert.Equal(t, types.SourceJobBoard, b.Name())
}

func TestCSENoItems(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"searchInformation":{"totalResults":"0"}}`)
	}))
	defer ts.Close()

	b := NewJobBoard("gk", "cx1", ts.URL, ts.Client(), "")
	hits, err := b.Fetch(context.Background(), "acme.com", "q", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// --- Tavily ---

func TestTavilyBackendFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tk", r.Header.Get("Authorization"))

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme security audit", req.Query)
		assert.Equal(t, 3, req.MaxResults)

		fmt.Fprint(w, `{"results":[{"title":"Acme SOC 2","url":"https://web/1","content":"Acme completed SOC 2","score":0.9,"published_date":"2026-01-05"}]}`)
	}))
	defer ts.Close()

	b := &TavilyBackend{APIKey: "tk", BaseURL: ts.URL, Client: ts.Client()}
	hits, err := b.Fetch(context.Background(), "acme.com", "security audit", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Acme completed SOC 2", hits[0].Snippet)
	assert.Equal(t, 2026, hits[0].PublishedAt.Year())
}

func TestTavilyRetryAfter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	b := &TavilyBackend{APIKey: "tk", BaseURL: ts.URL, Client: ts.Client()}
	_, err := b.Fetch(context.Background(), "acme.com", "q", 3)

	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2*time.Second, se.RetryAfter())
}

// --- Company site ---

const aboutPage = `<html><head><title>About Acme</title><script>var hiring = "ignored script text that is long enough";</script></head>
<body>
<nav><p>Hiring menu link that should be skipped because it is in nav</p></nav>
<h1>About us</h1>
<p>Acme builds developer platforms and is hiring across engineering and sales teams.</p>
<p>Short hiring.</p>
<ul><li>We recently opened an office in Berlin to support European customers.</li></ul>
</body></html>`

func TestSiteBackendExtractsMatchingBlocks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, aboutPage) })
	mux.HandleFunc("/blog", func(w http.ResponseWriter, _ *http.Request) { http.NotFound(w, nil) })
	ts := httptest.NewServer(mux)
	defer ts.Close()

	b := &SiteBackend{BaseURL: ts.URL, Paths: []string{"/about", "/blog"}, Client: ts.Client()}
	hits, err := b.Fetch(context.Background(), "acme.com", "hiring engineering", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "About Acme", hits[0].Title)
	assert.Contains(t, hits[0].Snippet, "is hiring across engineering")
	assert.Equal(t, ts.URL+"/about", hits[0].URL)
}

func TestSiteBackendFailsWhenEveryPageFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	b := &SiteBackend{BaseURL: ts.URL, Paths: []string{"", "/about"}, Client: ts.Client()}
	_, err := b.Fetch(context.Background(), "acme.com", "hiring", 3)
	require.Error(t, err)

	var se *httputil.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 503, se.StatusCode)
}

func TestSiteBackendRespectsLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<p>Acme hiring update number one with enough characters to count.</p>
<p>Acme hiring update number two with enough characters to count.</p>
<p>Acme hiring update number three with enough characters to count.</p>
</body></html>`)
	}))
	defer ts.Close()

	b := &SiteBackend{BaseURL: ts.URL, Client: ts.Client()}
	hits, err := b.Fetch(context.Background(), "acme.com", "hiring", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	s := strings.Repeat("é", 400)
	got := truncate(s, maxSnippet)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxSnippet, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	mixed := "ab" + strings.Repeat("日本", 10)
	got = truncate(mixed, 7)
	assert.Equal(t, "ab日本...", got)
}
