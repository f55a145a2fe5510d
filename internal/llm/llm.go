// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm adapts hosted language models to a single Completer capability
// used by the query strategist and the synthesizer.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/gtm-research/pkg/types"
)

// Completer turns a prompt into model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New returns the completer selected by cfg. It returns nil, nil when the
// provider is "none" or no API key is configured; callers then take their
// deterministic fallbacks.
func New(cfg types.LLMConfig, client *http.Client) (Completer, error) {
	switch cfg.Provider {
	case "", types.LLMNone:
		return nil, nil
	case types.LLMOpenAI:
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewOpenAI(cfg, client), nil
	case types.LLMAnthropic:
		if cfg.APIKey == "" {
			return nil, nil
		}
		return &ClaudeCompleter{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			BaseURL:   cfg.BaseURL,
			Client:    client,
		}, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q: want openai, anthropic, or none", cfg.Provider)
}
