// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/pdiddy/gtm-research/internal/httputil"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint and
// asks for a JSON object response.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI builds a completer from cfg. A non-empty BaseURL points the
// client at any OpenAI-compatible server.
func NewOpenAI(cfg types.LLMConfig, client *http.Client) *OpenAICompleter {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if client != nil {
		config.HTTPClient = client
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete sends prompt as a single user message.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// mapOpenAIError converts go-openai status errors into *httputil.StatusError
// so rate limits and client errors classify like every other backend.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai completion: %w", &httputil.StatusError{
			Service:    "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("openai completion: %w", &httputil.StatusError{
			Service:    "openai",
			StatusCode: reqErr.HTTPStatusCode,
		})
	}
	return fmt.Errorf("openai completion: %w", err)
}
