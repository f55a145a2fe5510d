package types

import "time"

// HTTPConfig holds shared HTTP settings used by backends that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP client timeout. The resilient caller applies its own
	// per-attempt deadline on top of this.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "gtm-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// CacheConfig holds settings for the evidence cache.
type CacheConfig struct {
	// TTL is how long a cached source result stays fresh (default 15m).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// CallerConfig holds settings for the resilient caller wrapped around every
// external call.
type CallerConfig struct {
	// Timeout bounds a single attempt (default 9s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries after the first attempt (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// BackoffBase is the first retry delay; it doubles per retry (default 250ms).
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`

	// BackoffMax caps a single retry delay (default 5s).
	BackoffMax time.Duration `json:"backoff_max" yaml:"backoff_max" mapstructure:"backoff_max"`
}

// SourceConfig holds the settings for one source backend.
type SourceConfig struct {
	// Enabled controls whether the source is queried at all.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// APIKey authenticates against the backing API, when it needs one.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint. Tests point this at httptest servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// RatePerSecond paces outbound calls to this source. Zero disables pacing.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" mapstructure:"rate_per_second"`

	// Burst is the token bucket size when RatePerSecond is set (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// SourcesConfig groups per-source backend settings.
type SourcesConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults caps the items kept from one source call (default 3).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	News                SourceConfig `json:"news" yaml:"news" mapstructure:"news"`
	CompanySite         SourceConfig `json:"company_site" yaml:"company_site" mapstructure:"company_site"`
	ProfessionalNetwork SourceConfig `json:"professional_network" yaml:"professional_network" mapstructure:"professional_network"`
	WebSearch           SourceConfig `json:"web_search" yaml:"web_search" mapstructure:"web_search"`
	JobBoard            SourceConfig `json:"job_board" yaml:"job_board" mapstructure:"job_board"`

	// SearchEngineID is the Google Custom Search engine (cx) shared by the
	// professional_network and job_board backends.
	SearchEngineID string `json:"search_engine_id,omitempty" yaml:"search_engine_id,omitempty" mapstructure:"search_engine_id"`

	// SitePaths are the company-site paths fetched per query (default "", "/about", "/blog").
	SitePaths []string `json:"site_paths" yaml:"site_paths" mapstructure:"site_paths"`
}

// For returns the settings of the named source.
func (c SourcesConfig) For(name SourceName) SourceConfig {
	switch name {
	case SourceNews:
		return c.News
	case SourceCompanySite:
		return c.CompanySite
	case SourceProfessionalNetwork:
		return c.ProfessionalNetwork
	case SourceWebSearch:
		return c.WebSearch
	case SourceJobBoard:
		return c.JobBoard
	}
	return SourceConfig{}
}

// LLMProvider selects the language model backend.
type LLMProvider string

const (
	LLMNone      LLMProvider = "none"
	LLMOpenAI    LLMProvider = "openai"
	LLMAnthropic LLMProvider = "anthropic"
)

// LLMConfig holds settings for the language model used by the strategist and
// the synthesizer.
type LLMConfig struct {
	// Provider selects openai, anthropic, or none. With none every LLM step
	// takes its deterministic fallback.
	Provider LLMProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens bounds the completion length (default 1024).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the sampling temperature (default 0.2).
	Temperature float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// EvaluatorConfig holds the confidence model parameters.
type EvaluatorConfig struct {
	// Floor is the score of a source with no evidence (default 0.5).
	Floor float64 `json:"floor" yaml:"floor" mapstructure:"floor"`

	// Cap is the upper bound any score approaches (default and maximum 0.95).
	Cap float64 `json:"cap" yaml:"cap" mapstructure:"cap"`

	// Saturation controls how quickly evidence pushes a score toward Cap (default 2).
	Saturation float64 `json:"saturation" yaml:"saturation" mapstructure:"saturation"`

	// Threshold is the default confidence below which refinement runs (default 0.8).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// MinEvidencePerSource marks a source as a gap when it has fewer items (default 2).
	MinEvidencePerSource int `json:"min_evidence_per_source" yaml:"min_evidence_per_source" mapstructure:"min_evidence_per_source"`
}

// MaxConfidence bounds every confidence value the pipeline reports.
const MaxConfidence = 0.95

// Clamp keeps Cap at or below MaxConfidence and Floor within [0, Cap].
func (c *EvaluatorConfig) Clamp() {
	if c.Cap > MaxConfidence {
		c.Cap = MaxConfidence
	}
	if c.Floor > c.Cap {
		c.Floor = c.Cap
	}
	if c.Floor < 0 {
		c.Floor = 0
	}
}

// RefinerConfig holds settings for gap-targeted refinement.
type RefinerConfig struct {
	// RoundBudget is the maximum number of refinement rounds (default 2).
	RoundBudget int `json:"round_budget" yaml:"round_budget" mapstructure:"round_budget"`

	// QueriesPerGap bounds follow-up queries per gapped source (default 2).
	QueriesPerGap int `json:"queries_per_gap" yaml:"queries_per_gap" mapstructure:"queries_per_gap"`

	// Templates overrides the per-source text/template query templates.
	// Fields available: .Company .Domain .Goal .Signal.
	Templates map[SourceName]string `json:"templates,omitempty" yaml:"templates,omitempty" mapstructure:"templates"`
}

// SynthesisConfig holds settings for the synthesizer.
type SynthesisConfig struct {
	// TopN is the number of items quoted in fallback summaries and returned as
	// top evidence (default 5).
	TopN int `json:"top_n" yaml:"top_n" mapstructure:"top_n"`

	// MaxPromptItems bounds the evidence sent to the model (default 20).
	MaxPromptItems int `json:"max_prompt_items" yaml:"max_prompt_items" mapstructure:"max_prompt_items"`

	// SignalVocabulary lists extra terms reported as signals when they appear in evidence.
	SignalVocabulary []string `json:"signal_vocabulary" yaml:"signal_vocabulary" mapstructure:"signal_vocabulary"`
}

// OrchestratorConfig holds request-level limits.
type OrchestratorConfig struct {
	// MaxParallel is the default global bound on concurrent external calls (default 4).
	MaxParallel int `json:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`

	// RequestTimeout bounds a whole research run (default 2m).
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
}

// PipelineConfig groups all component configurations for the pipeline.
type PipelineConfig struct {
	Cache        CacheConfig        `json:"cache" yaml:"cache" mapstructure:"cache"`
	Caller       CallerConfig       `json:"caller" yaml:"caller" mapstructure:"caller"`
	Sources      SourcesConfig      `json:"sources" yaml:"sources" mapstructure:"sources"`
	LLM          LLMConfig          `json:"llm" yaml:"llm" mapstructure:"llm"`
	Evaluator    EvaluatorConfig    `json:"evaluator" yaml:"evaluator" mapstructure:"evaluator"`
	Refiner      RefinerConfig      `json:"refiner" yaml:"refiner" mapstructure:"refiner"`
	Synthesis    SynthesisConfig    `json:"synthesis" yaml:"synthesis" mapstructure:"synthesis"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator" mapstructure:"orchestrator"`
}

// DefaultPipelineConfig returns the configuration used when nothing is set.
func DefaultPipelineConfig() PipelineConfig {
	enabled := SourceConfig{Enabled: true, Burst: 1}
	return PipelineConfig{
		Cache: CacheConfig{TTL: 15 * time.Minute},
		Caller: CallerConfig{
			Timeout:     9 * time.Second,
			MaxRetries:  2,
			BackoffBase: 250 * time.Millisecond,
			BackoffMax:  5 * time.Second,
		},
		Sources: SourcesConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   10 * time.Second,
				UserAgent: "gtm-research/0.1",
			},
			MaxResults:          3,
			News:                enabled,
			CompanySite:         enabled,
			ProfessionalNetwork: enabled,
			WebSearch:           enabled,
			JobBoard:            enabled,
			SitePaths:           []string{"", "/about", "/blog"},
		},
		LLM: LLMConfig{
			Provider:    LLMOpenAI,
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Evaluator: EvaluatorConfig{
			Floor:                0.5,
			Cap:                  0.95,
			Saturation:           2,
			Threshold:            0.8,
			MinEvidencePerSource: 2,
		},
		Refiner: RefinerConfig{
			RoundBudget:   2,
			QueriesPerGap: 2,
		},
		Synthesis: SynthesisConfig{
			TopN:           5,
			MaxPromptItems: 20,
			SignalVocabulary: []string{
				"hiring", "funding", "acquisition", "partnership", "launch",
				"expansion", "layoffs", "migration", "compliance", "pricing",
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel:    4,
			RequestTimeout: 2 * time.Minute,
		},
	}
}

// ApplyDefaults fills zero-valued numeric settings from DefaultPipelineConfig.
// Booleans and strings are left alone so an explicit false or empty value survives.
func (c *PipelineConfig) ApplyDefaults() {
	d := DefaultPipelineConfig()
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Caller.Timeout <= 0 {
		c.Caller.Timeout = d.Caller.Timeout
	}
	if c.Caller.MaxRetries < 0 {
		c.Caller.MaxRetries = 0
	}
	if c.Caller.BackoffBase <= 0 {
		c.Caller.BackoffBase = d.Caller.BackoffBase
	}
	if c.Caller.BackoffMax <= 0 {
		c.Caller.BackoffMax = d.Caller.BackoffMax
	}
	if c.Sources.Timeout <= 0 {
		c.Sources.Timeout = d.Sources.Timeout
	}
	if c.Sources.UserAgent == "" {
		c.Sources.UserAgent = d.Sources.UserAgent
	}
	if c.Sources.MaxResults <= 0 {
		c.Sources.MaxResults = d.Sources.MaxResults
	}
	if c.Sources.SitePaths == nil {
		c.Sources.SitePaths = d.Sources.SitePaths
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.Evaluator.Floor <= 0 {
		c.Evaluator.Floor = d.Evaluator.Floor
	}
	if c.Evaluator.Cap <= 0 || c.Evaluator.Cap < c.Evaluator.Floor {
		c.Evaluator.Cap = d.Evaluator.Cap
	}
	c.Evaluator.Clamp()
	if c.Evaluator.Saturation <= 0 {
		c.Evaluator.Saturation = d.Evaluator.Saturation
	}
	if c.Evaluator.Threshold <= 0 {
		c.Evaluator.Threshold = d.Evaluator.Threshold
	}
	if c.Evaluator.MinEvidencePerSource <= 0 {
		c.Evaluator.MinEvidencePerSource = d.Evaluator.MinEvidencePerSource
	}
	if c.Refiner.RoundBudget < 0 {
		c.Refiner.RoundBudget = 0
	}
	if c.Refiner.QueriesPerGap <= 0 {
		c.Refiner.QueriesPerGap = d.Refiner.QueriesPerGap
	}
	if c.Synthesis.TopN <= 0 {
		c.Synthesis.TopN = d.Synthesis.TopN
	}
	if c.Synthesis.MaxPromptItems <= 0 {
		c.Synthesis.MaxPromptItems = d.Synthesis.MaxPromptItems
	}
	if c.Orchestrator.MaxParallel <= 0 {
		c.Orchestrator.MaxParallel = d.Orchestrator.MaxParallel
	}
	if c.Orchestrator.RequestTimeout <= 0 {
		c.Orchestrator.RequestTimeout = d.Orchestrator.RequestTimeout
	}
}

// EnabledSources returns the configured sources in reporting order.
func (c PipelineConfig) EnabledSources() []SourceName {
	var out []SourceName
	for _, name := range AllSources {
		if c.Sources.For(name).Enabled {
			out = append(out, name)
		}
	}
	return out
}
