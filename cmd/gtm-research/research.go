// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/gtm-research/internal/strategy"
	"github.com/pdiddy/gtm-research/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research [domains...]",
	Short: "Research a goal across company domains",
	Long: `Research runs the full pipeline for every domain and prints one result per
company as JSON. With --stream, results are written as newline-delimited JSON
events as each company finishes: a start event, one result event per company
in completion order, and an end event with run totals.

A request can also come from a YAML file (--request) with the same fields as
the flags, and a reviewed query plan (--plan, see "gtm-research queries")
replaces the generated queries for every company.`,
	Example: `  gtm-research research --goal "hiring platform engineers" stripe.com plaid.com
  gtm-research research --request req.yaml --stream
  gtm-research research --goal "SOC2 compliance" --plan plan.yaml acme.com`,
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().String("goal", "", "research goal in plain language")
	researchCmd.Flags().StringSlice("domain", nil, "company domain (repeatable, or pass as arguments)")
	researchCmd.Flags().String("depth", "", "quick, standard, or comprehensive (default standard)")
	researchCmd.Flags().Float64("threshold", 0, "confidence threshold below which companies are refined (default from config)")
	researchCmd.Flags().Int("max-parallel", 0, "maximum concurrent external calls (default from config)")
	researchCmd.Flags().String("request", "", "YAML request file")
	researchCmd.Flags().String("plan", "", "YAML query plan to use instead of generated queries")
	researchCmd.Flags().Bool("stream", false, "write newline-delimited JSON events as companies finish")
	researchCmd.Flags().Bool("evidence", false, "include top evidence items in results")
	researchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running, e.g. :9090")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd, args)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		stop, err := serveMetrics(addr, a.registry)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	withEvidence, _ := cmd.Flags().GetBool("evidence")
	before := a.metrics.Snapshot()
	defer func() {
		d := a.metrics.Snapshot().Sub(before)
		logger.Info("metrics",
			zap.Int64("external_calls", d.ExternalCalls),
			zap.Int64("failed_calls", d.FailedCalls),
			zap.Float64("cache_hit_rate", d.CacheHitRate()))
	}()

	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		events, err := a.engine.Stream(ctx, req)
		if err != nil {
			return err
		}
		return writeEvents(cmd.OutOrStdout(), events, withEvidence)
	}

	resp, err := a.engine.Run(ctx, req)
	if err != nil {
		return err
	}
	if !withEvidence {
		for i := range resp.Results {
			resp.Results[i].TopEvidence = nil
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// buildRequest merges the request file, flags, arguments, and plan.
// Flags override values from the request file.
func buildRequest(cmd *cobra.Command, args []string) (types.ResearchRequest, error) {
	var req types.ResearchRequest
	if path, _ := cmd.Flags().GetString("request"); path != "" {
		r, err := readRequest(path)
		if err != nil {
			return req, err
		}
		req = *r
	}

	if goal, _ := cmd.Flags().GetString("goal"); goal != "" {
		req.Goal = goal
	}
	domains, _ := cmd.Flags().GetStringSlice("domain")
	domains = append(domains, args...)
	if len(domains) > 0 {
		req.Domains = domains
	}
	if depth, _ := cmd.Flags().GetString("depth"); depth != "" {
		req.Depth = types.Depth(depth)
	}
	if cmd.Flags().Changed("threshold") {
		t, _ := cmd.Flags().GetFloat64("threshold")
		req.ConfidenceThreshold = &t
	}
	if n, _ := cmd.Flags().GetInt("max-parallel"); n > 0 {
		req.MaxParallel = n
	}

	if path, _ := cmd.Flags().GetString("plan"); path != "" {
		plan, err := strategy.ReadPlan(path)
		if err != nil {
			return req, err
		}
		req.Queries = plan.Queries
		if req.Goal == "" {
			req.Goal = plan.Goal
		}
		if len(req.Domains) == 0 && plan.Domain != "" {
			req.Domains = []string{plan.Domain}
		}
	}

	if req.Goal == "" {
		return req, fmt.Errorf("provide a research goal with --goal or a request file")
	}
	if len(req.Domains) == 0 {
		return req, fmt.Errorf("provide one or more company domains")
	}
	return req, nil
}

func readRequest(path string) (*types.ResearchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request file: %w", err)
	}
	var req types.ResearchRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing request file %s: %w", path, err)
	}
	return &req, nil
}

// writeEvents writes each event as one JSON line as soon as it arrives.
func writeEvents(w io.Writer, events <-chan types.Event, withEvidence bool) error {
	enc := json.NewEncoder(w)
	for ev := range events {
		if ev.Result != nil && !withEvidence {
			r := *ev.Result
			r.TopEvidence = nil
			ev.Result = &r
		}
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("writing event: %w", err)
		}
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned stop function runs.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
