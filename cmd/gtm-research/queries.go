// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/gtm-research/internal/strategy"
	"github.com/pdiddy/gtm-research/pkg/types"
)

var queriesCmd = &cobra.Command{
	Use:   "queries <domain>",
	Short: "Generate the initial query plan for one company",
	Long: `Queries runs only the planning step: it asks the language model for search
queries spread across the configured sources, or falls back to one templated
query per source. The plan is printed as YAML, or written to --out so it can
be edited and replayed with "gtm-research research --plan".`,
	Args: cobra.ExactArgs(1),
	RunE: runQueries,
}

func init() {
	queriesCmd.Flags().String("goal", "", "research goal in plain language")
	queriesCmd.Flags().String("depth", "", "quick, standard, or comprehensive (default standard)")
	queriesCmd.Flags().String("out", "", "write the plan to this file instead of stdout")

	rootCmd.AddCommand(queriesCmd)
}

func runQueries(cmd *cobra.Command, args []string) error {
	goal, _ := cmd.Flags().GetString("goal")
	if goal == "" {
		return fmt.Errorf("provide a research goal with --goal")
	}
	d, _ := cmd.Flags().GetString("depth")
	depth, err := types.ParseDepth(d)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	qs, err := a.engine.Strategize(cmd.Context(), goal, args[0], depth)
	if err != nil {
		return err
	}

	plan := strategy.Plan{
		Goal:    goal,
		Domain:  types.NormalizeDomain(args[0]),
		Depth:   depth,
		Queries: qs,
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := strategy.WritePlan(out, plan); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d queries to %s\n", len(qs), out)
		return nil
	}

	data, err := yaml.Marshal(&plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
