// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/gtm-research/internal/httputil"
)

// claudeAPIURL is the Claude Messages endpoint.
const claudeAPIURL = "https://api.anthropic.com/v1/messages"

const claudeDefaultModel = "claude-sonnet-4-5-20250929"

// ClaudeCompleter calls the Anthropic Messages API.
type ClaudeCompleter struct {
	APIKey    string
	Model     string
	MaxTokens int

	// BaseURL overrides claudeAPIURL. Tests point it at an httptest server.
	BaseURL string
	Client  *http.Client
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends prompt as a single user turn and returns the first text block.
func (c *ClaudeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	model := c.Model
	if model == "" {
		model = claudeDefaultModel
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	bodyBytes, err := json.Marshal(claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.BaseURL
	if endpoint == "" {
		endpoint = claudeAPIURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	var cResp claudeResponse
	if err := httputil.DoJSON(ctx, c.Client, req, "Claude API", &cResp); err != nil {
		return "", err
	}

	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}
