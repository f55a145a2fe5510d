// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/gtm-research/pkg/types"
)

func TestReadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`goal: hiring platform engineers
domains: [stripe.com, plaid.com]
depth: quick
confidence_threshold: 0.75
max_parallel: 3
queries:
  - text: stripe kubernetes jobs
    target_source: job_board
`), 0o644))

	req, err := readRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "hiring platform engineers", req.Goal)
	assert.Equal(t, []string{"stripe.com", "plaid.com"}, req.Domains)
	assert.Equal(t, types.DepthQuick, req.Depth)
	require.NotNil(t, req.ConfidenceThreshold)
	assert.Equal(t, 0.75, *req.ConfidenceThreshold)
	assert.Equal(t, 3, req.MaxParallel)
	require.Len(t, req.Queries, 1)
	assert.Equal(t, types.SourceJobBoard, req.Queries[0].TargetSource)

	_, err = readRequest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading request file")
}

func TestWriteEventsIsNewlineDelimited(t *testing.T) {
	ch := make(chan types.Event, 3)
	res := &types.SynthesisResult{
		Domain:      "acme.com",
		Status:      types.StatusSynthesized,
		TopEvidence: []types.EvidenceItem{{Title: "t"}},
	}
	ch <- types.Event{Type: types.EventStart, Seq: 1}
	ch <- types.Event{Type: types.EventResult, Seq: 2, Domain: "acme.com", Result: res}
	ch <- types.Event{Type: types.EventEnd, Seq: 3, Totals: &types.RunTotals{TotalCompanies: 1}}
	close(ch)

	var buf bytes.Buffer
	require.NoError(t, writeEvents(&buf, ch, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var ev types.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, types.EventResult, ev.Type)
	require.NotNil(t, ev.Result)
	assert.Empty(t, ev.Result.TopEvidence)
	assert.Len(t, res.TopEvidence, 1, "caller's result is not modified")
}

func TestRedact(t *testing.T) {
	cfg := types.DefaultPipelineConfig()
	cfg.Sources.News.APIKey = "na"
	cfg.LLM.APIKey = "sk"
	redact(&cfg)
	assert.Equal(t, "<redacted>", cfg.Sources.News.APIKey)
	assert.Equal(t, "<redacted>", cfg.LLM.APIKey)
	assert.Empty(t, cfg.Sources.WebSearch.APIKey)
}
