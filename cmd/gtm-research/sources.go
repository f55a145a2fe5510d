// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/gtm-research/pkg/types"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List information sources and whether they are active",
	Long: `Sources shows every information channel, whether it is enabled in the
configuration, and whether it will be queried. An enabled source is inactive
when its API key or search engine id is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		active := make(map[types.SourceName]bool)
		for _, n := range a.engine.Sources() {
			active[n] = true
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tENABLED\tACTIVE\tRATE/S")
		for _, name := range types.AllSources {
			sc := a.cfg.Sources.For(name)
			rate := "-"
			if sc.RatePerSecond > 0 {
				rate = fmt.Sprintf("%g", sc.RatePerSecond)
			}
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", name, sc.Enabled, active[name], rate)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
