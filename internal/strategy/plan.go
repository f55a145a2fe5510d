// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package strategy

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/gtm-research/pkg/types"
)

// Plan is the on-disk form of a generated query batch. A researcher can
// review or edit it and replay it with research --plan.
type Plan struct {
	Goal      string        `yaml:"goal"`
	Domain    string        `yaml:"domain,omitempty"`
	Depth     types.Depth   `yaml:"depth"`
	Queries   []types.Query `yaml:"queries"`
	CreatedAt time.Time     `yaml:"created_at"`
}

// WritePlan saves p as YAML.
func WritePlan(path string, p Plan) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("marshaling plan file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPlan loads a plan and validates its queries.
func ReadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}
	if len(p.Queries) == 0 {
		return nil, fmt.Errorf("plan file %s has no queries", path)
	}
	for i, q := range p.Queries {
		if q.Text == "" {
			return nil, fmt.Errorf("plan file %s: query %d has empty text", path, i)
		}
		if q.TargetSource != "" {
			src, ok := types.ParseSourceName(string(q.TargetSource))
			if !ok {
				return nil, fmt.Errorf("plan file %s: query %d has unknown source %q", path, i, q.TargetSource)
			}
			p.Queries[i].TargetSource = src
		}
		p.Queries[i].ExpectedRelevance = clamp01(q.ExpectedRelevance)
		p.Queries[i].GenerationRound = 0
	}
	return &p, nil
}
