// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "acme s new ai platform", Normalize("  Acme's NEW  AI-platform! "))
	assert.Equal(t, "", Normalize("?!"))
}

func TestTokens(t *testing.T) {
	got := Tokens("Find companies hiring ML engineers and hiring SRE")
	assert.Equal(t, []string{"hiring", "ml", "engineers", "sre"}, got)
}

func TestHitRatio(t *testing.T) {
	terms := []string{"hiring", "kubernetes", "security"}
	assert.InDelta(t, 2.0/3.0, HitRatio(terms, "We are hiring Kubernetes experts"), 1e-9)
	assert.Equal(t, 0.0, HitRatio(nil, "anything"))
	assert.True(t, Contains(terms, "security team"))
	assert.False(t, Contains(terms, "unrelated"))
}

func TestTop(t *testing.T) {
	texts := []string{
		"Acme expands platform team, platform hiring",
		"Acme launches platform API",
		"Series B funding for Acme in 2024",
	}
	got := Top(texts, []string{"acme"}, 2)
	assert.Equal(t, []string{"platform", "api"}, got)
}

func TestMerge(t *testing.T) {
	assert.Equal(t, []string{"a1", "b2", "c3"}, Merge([]string{"a1", "b2"}, []string{"b2", "c3"}))
}
