// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the gtm-research CLI.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/gtm-research/internal/cache"
	"github.com/pdiddy/gtm-research/internal/llm"
	"github.com/pdiddy/gtm-research/internal/metrics"
	"github.com/pdiddy/gtm-research/internal/research"
	"github.com/pdiddy/gtm-research/internal/secrets"
	"github.com/pdiddy/gtm-research/internal/source"
	"github.com/pdiddy/gtm-research/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// logger writes structured logs to stderr; stdout carries results only.
	logger = zap.NewNop()

	// loadedSecrets holds API keys loaded from the secrets directory at startup.
	loadedSecrets map[string]string
)

// envKeys are the settings that can be overridden with GTM_RESEARCH_*
// variables, e.g. GTM_RESEARCH_SOURCES_NEWS_API_KEY.
var envKeys = []string{
	"sources.news.api_key",
	"sources.professional_network.api_key",
	"sources.job_board.api_key",
	"sources.web_search.api_key",
	"sources.search_engine_id",
	"llm.provider",
	"llm.model",
	"llm.api_key",
	"llm.base_url",
	"evaluator.threshold",
	"refiner.round_budget",
	"orchestrator.max_parallel",
	"orchestrator.request_timeout",
}

var rootCmd = &cobra.Command{
	Use:   "gtm-research",
	Short: "Concurrent go-to-market research across news, web, and hiring sources",
	Long: `gtm-research answers a research goal for a list of company domains. For each
company it plans search queries, runs them concurrently across the configured
sources, scores how well the evidence covers the goal, issues follow-up queries
where coverage is thin, and writes a summary with the signals it found.

API keys are read from the config file, GTM_RESEARCH_* environment variables,
or one file per key in the secrets directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, err := newLogger(verbose)
		if err != nil {
			return err
		}
		logger = l

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./gtm-research.yaml or ~/.config/gtm-research/gtm-research.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory with one file per API key")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gtm-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "gtm-research"))
		}
	}

	viper.SetEnvPrefix("GTM_RESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, k := range envKeys {
		_ = viper.BindEnv(k)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadPipelineConfig layers the config file and environment over the
// defaults, then fills missing keys from the secrets directory.
func loadPipelineConfig() (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing configuration: %w", err)
	}
	if used := secrets.Apply(&cfg, loadedSecrets); len(used) > 0 {
		logger.Info("loaded secrets", zap.Strings("keys", used))
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// app holds the long-lived collaborators built from configuration.
type app struct {
	cfg      types.PipelineConfig
	engine   *research.Engine
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newApp() (*app, error) {
	cfg, err := loadPipelineConfig()
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Sources.Timeout}
	sources := source.FromConfig(cfg.Sources, client, logger)

	completer, err := llm.New(cfg.LLM, &http.Client{})
	if err != nil {
		return nil, err
	}
	if completer == nil {
		logger.Warn("no language model configured; using templated queries and summaries")
	}

	c := cache.New(cfg.Cache.TTL)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, c)

	engine, err := research.New(cfg, sources,
		research.WithCache(c),
		research.WithMetrics(m),
		research.WithCompleter(completer),
		research.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, engine: engine, metrics: m, registry: reg}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
