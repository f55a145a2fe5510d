// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/pdiddy/gtm-research/internal/httputil"
	"github.com/pdiddy/gtm-research/internal/keywords"
	"github.com/pdiddy/gtm-research/pkg/types"
)

const (
	maxPageBytes  = 1 << 20
	minBlockChars = 40
	maxSnippet    = 300
)

// SiteBackend reads the company's own pages and returns text blocks that
// mention the query's keywords.
type SiteBackend struct {
	// BaseURL replaces "https://<domain>" when set. Tests point it at an
	// httptest server.
	BaseURL   string
	Paths     []string
	Client    *http.Client
	UserAgent string
}

// Name returns the channel identifier.
func (b *SiteBackend) Name() types.SourceName { return types.SourceCompanySite }

// Fetch reads each configured path. It fails only when every page fails.
func (b *SiteBackend) Fetch(ctx context.Context, domain, query string, limit int) ([]Hit, error) {
	paths := b.Paths
	if len(paths) == 0 {
		paths = []string{""}
	}
	root := b.BaseURL
	if root == "" {
		root = "https://" + domain
	}
	root = strings.TrimRight(root, "/")
	terms := keywords.Tokens(query)

	var hits []Hit
	var lastErr error
	okPages := 0
	for _, p := range paths {
		pageURL := root + p
		doc, err := b.page(ctx, pageURL)
		if err != nil {
			lastErr = err
			continue
		}
		okPages++
		hits = append(hits, blockHits(doc, pageURL, terms)...)
		if limit > 0 && len(hits) >= limit {
			return hits[:limit], nil
		}
	}
	if okPages == 0 && lastErr != nil {
		return nil, lastErr
	}
	return hits, nil
}

func (b *SiteBackend) page(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp, "company site"); err != nil {
		return nil, err
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return doc, nil
}

// blockHits returns one hit per text block mentioning any of terms. With no
// terms every block qualifies.
func blockHits(doc *html.Node, pageURL string, terms []string) []Hit {
	title := pageTitle(doc)
	var hits []Hit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer", "head":
				return
			case "p", "li", "h1", "h2", "h3", "h4", "blockquote":
				text := textContent(n)
				if len(text) >= minBlockChars && (len(terms) == 0 || keywords.Contains(terms, text)) {
					hits = append(hits, Hit{Title: title, Snippet: truncate(text, maxSnippet), URL: pageURL})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits
}

func pageTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			title = textContent(n)
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// truncate shortens s to at most max runes, ending in "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max-3])) + "..."
}
