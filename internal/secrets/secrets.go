// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Recognized key files: newsapi-api-key, google-api-key, google-cse-id,
// tavily-api-key, openai-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/gtm-research/pkg/types"
)

// Key file names.
const (
	NewsAPIKey   = "newsapi-api-key"
	GoogleAPIKey = "google-api-key"
	GoogleCSEID  = "google-cse-id"
	TavilyAPIKey = "tavily-api-key"
	OpenAIKey    = "openai-api-key"
	AnthropicKey = "anthropic-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Apply copies secrets into cfg wherever the matching setting is still
// empty, so values from the config file or environment win. It returns the
// names of the secrets it used, sorted.
func Apply(cfg *types.PipelineConfig, secrets map[string]string) []string {
	var used []string
	fill := func(dst *string, key string) {
		v, ok := secrets[key]
		if !ok || *dst != "" {
			return
		}
		*dst = v
		used = append(used, key)
	}

	fill(&cfg.Sources.News.APIKey, NewsAPIKey)
	fill(&cfg.Sources.ProfessionalNetwork.APIKey, GoogleAPIKey)
	fill(&cfg.Sources.JobBoard.APIKey, GoogleAPIKey)
	fill(&cfg.Sources.SearchEngineID, GoogleCSEID)
	fill(&cfg.Sources.WebSearch.APIKey, TavilyAPIKey)

	switch cfg.LLM.Provider {
	case types.LLMOpenAI:
		fill(&cfg.LLM.APIKey, OpenAIKey)
	case types.LLMAnthropic:
		fill(&cfg.LLM.APIKey, AnthropicKey)
	}

	sort.Strings(used)
	return dedup(used)
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
