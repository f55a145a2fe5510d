// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package execute fans a batch of queries out across the source modules.
package execute

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/gtm-research/internal/source"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// Coordinator runs (query, source) pairs concurrently. It does not limit
// concurrency itself; the resilient caller inside each source holds the
// request's permit only around the external call.
type Coordinator struct {
	sources map[types.SourceName]source.Source
	order   []types.SourceName
	log     *zap.Logger
}

// New returns a Coordinator over sources. order fixes which sources an
// untargeted query fans out to, and in what order the goroutines start.
func New(sources map[types.SourceName]source.Source, order []types.SourceName, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	var known []types.SourceName
	for _, name := range order {
		if _, ok := sources[name]; ok {
			known = append(known, name)
		}
	}
	return &Coordinator{sources: sources, order: known, log: log}
}

// Sources returns the sources the coordinator can reach.
func (c *Coordinator) Sources() []types.SourceName {
	out := make([]types.SourceName, len(c.order))
	copy(out, c.order)
	return out
}

type pair struct {
	query types.Query
	src   source.Source
}

// Execute runs every query against its target source, or against every
// source when the target is empty, and returns one outcome per pair in
// completion order. Queries naming an unknown source are skipped. A failed
// pair never cancels its siblings.
func (c *Coordinator) Execute(ctx context.Context, domain string, queries []types.Query) []types.SourceOutcome {
	var pairs []pair
	for _, q := range queries {
		if q.TargetSource == "" {
			for _, name := range c.order {
				pairs = append(pairs, pair{query: q, src: c.sources[name]})
			}
			continue
		}
		src, ok := c.sources[q.TargetSource]
		if !ok {
			c.log.Warn("skipping query for unknown source",
				zap.String("domain", domain),
				zap.String("source", string(q.TargetSource)),
				zap.String("query", q.Text))
			continue
		}
		pairs = append(pairs, pair{query: q, src: src})
	}
	if len(pairs) == 0 {
		return nil
	}

	ch := make(chan types.SourceOutcome, len(pairs))
	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			ch <- p.src.Search(ctx, domain, p.query)
		}(p)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	outcomes := make([]types.SourceOutcome, 0, len(pairs))
	for o := range ch {
		outcomes = append(outcomes, o)
	}
	return outcomes
}
