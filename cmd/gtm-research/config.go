// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/gtm-research/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Config prints the configuration after defaults, the config file,
environment variables, and secrets are applied. API keys are redacted.
With --init it writes the defaults to gtm-research.yaml instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if initFile, _ := cmd.Flags().GetBool("init"); initFile {
			return writeDefaultConfig("gtm-research.yaml")
		}
		cfg, err := loadPipelineConfig()
		if err != nil {
			return err
		}
		redact(&cfg)
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().Bool("init", false, "write a default gtm-research.yaml in the current directory")
	rootCmd.AddCommand(configCmd)
}

func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg := types.DefaultPipelineConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintln(os.Stderr, "Wrote", path)
	return nil
}

func redact(cfg *types.PipelineConfig) {
	for _, key := range []*string{
		&cfg.Sources.News.APIKey,
		&cfg.Sources.CompanySite.APIKey,
		&cfg.Sources.ProfessionalNetwork.APIKey,
		&cfg.Sources.WebSearch.APIKey,
		&cfg.Sources.JobBoard.APIKey,
		&cfg.LLM.APIKey,
	} {
		if *key != "" {
			*key = "<redacted>"
		}
	}
}
