// Package config loads and builds AnalysisConfig, the single
// configuration surface the orchestrator consumes. Loading follows
// jnd-labs/aiblackbox's viper-based pattern: a YAML file plus HARLC_-
// prefixed environment overrides, with every tunable defaulted.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// AnalysisMode is the coarse preset surface: it keeps the enum as the
// primary surface while Custom exposes the full parameterised
// AnalysisConfig beneath it.
type AnalysisMode string

const (
	ModeManual    AnalysisMode = "manual"
	ModeAutomatic AnalysisMode = "automatic"
	ModeAssisted  AnalysisMode = "assisted"
	ModeCustom    AnalysisMode = "custom"
)

// PriorityPattern is a weighted regex used by the scoring engine's
// relevance sub-score.
type PriorityPattern struct {
	Regex  string `mapstructure:"regex"`
	Weight int    `mapstructure:"weight"`
}

// ContextualRule references a library-provided predicate by id with a
// weight.
type ContextualRule struct {
	ConditionID string  `mapstructure:"condition_id"`
	Weight      float64 `mapstructure:"weight"`
}

// EndpointPatterns configures the relevance sub-score's include/exclude/
// priority regex lists.
type EndpointPatterns struct {
	Include  []string          `mapstructure:"include"`
	Exclude  []string          `mapstructure:"exclude"`
	Priority []PriorityPattern `mapstructure:"priority"`
}

// ScoreThresholds configures the filtering cutoffs.
type ScoreThresholds struct {
	Minimum float64 `mapstructure:"minimum"`
	Optimal float64 `mapstructure:"optimal"`
}

// FilteringConfig groups the scoring engine's tunables.
type FilteringConfig struct {
	EndpointPatterns    EndpointPatterns `mapstructure:"endpoint_patterns"`
	ResourceTypeWeights map[string]int   `mapstructure:"resource_type_weights"`
	ContextualRules     []ContextualRule `mapstructure:"contextual_rules"`
	ScoreThresholds     ScoreThresholds  `mapstructure:"score_thresholds"`
}

// TokenDetectionScope selects how aggressively the token detector scans.
type TokenDetectionScope string

const (
	ScopeComprehensiveScan TokenDetectionScope = "comprehensive_scan"
	ScopeTargetedAnalysis  TokenDetectionScope = "targeted_analysis"
)

// TokenDetectionConfig groups the token detector's tunables.
type TokenDetectionConfig struct {
	Scope          TokenDetectionScope `mapstructure:"scope"`
	CustomPatterns []string            `mapstructure:"custom_patterns"`
}

// CodeGenTemplate selects the script builder's output shape.
type CodeGenTemplate string

const (
	TemplateSingleRequest CodeGenTemplate = "single_request"
	TemplateMultiStepFlow CodeGenTemplate = "multi_step_flow"
)

// CodeGenerationConfig groups the block builder / emitter's tunables.
type CodeGenerationConfig struct {
	Template        CodeGenTemplate `mapstructure:"template"`
	IncludeComments bool            `mapstructure:"include_comments"`
	ErrorHandling   bool            `mapstructure:"error_handling"`
}

// ParserConfig groups the streaming parser's tunables.
type ParserConfig struct {
	BatchSize              int   `mapstructure:"batch_size"`
	MaxEntrySize           int64 `mapstructure:"max_entry_size"`
	LargeResponseThreshold int64 `mapstructure:"large_response_threshold"`
	SkipLargeResponses     bool  `mapstructure:"skip_large_responses"`
	ParseTimeoutSeconds    int   `mapstructure:"parse_timeout_seconds"`
	IncludeTiming          bool  `mapstructure:"include_timing"`
	IncludeCache           bool  `mapstructure:"include_cache"`
}

// AnalysisConfig is the full configuration surface consumed by
// analyze.Analyze.
type AnalysisConfig struct {
	Mode           AnalysisMode         `mapstructure:"mode"`
	Filtering      FilteringConfig      `mapstructure:"filtering"`
	TokenDetection TokenDetectionConfig `mapstructure:"token_detection"`
	CodeGeneration CodeGenerationConfig `mapstructure:"code_generation"`
	Parser         ParserConfig         `mapstructure:"parser"`
}

// Default returns the baseline configuration before a mode preset or user
// overrides are applied.
func Default() AnalysisConfig {
	return AnalysisConfig{
		Mode: ModeAutomatic,
		Filtering: FilteringConfig{
			ResourceTypeWeights: map[string]int{
				"authentication":     25,
				"api_endpoint":       15,
				"form_submission":    20,
				"session_management": 20,
			},
			ScoreThresholds: ScoreThresholds{Minimum: 20, Optimal: 80},
		},
		TokenDetection: TokenDetectionConfig{Scope: ScopeComprehensiveScan},
		CodeGeneration: CodeGenerationConfig{
			Template:        TemplateMultiStepFlow,
			IncludeComments: true,
			ErrorHandling:   true,
		},
		Parser: ParserConfig{
			BatchSize:              100,
			MaxEntrySize:           10 * 1024 * 1024,
			LargeResponseThreshold: 1 * 1024 * 1024,
			SkipLargeResponses:     false,
			ParseTimeoutSeconds:    60,
			IncludeTiming:          true,
			IncludeCache:           false,
		},
	}
}

// ApplyMode mutates cfg to match one of the four presets. Custom
// leaves the caller's already-populated fields untouched.
func ApplyMode(cfg *AnalysisConfig, mode AnalysisMode) {
	switch mode {
	case ModeManual:
		cfg.Mode = ModeManual
		cfg.Filtering.ScoreThresholds = ScoreThresholds{Minimum: 0, Optimal: 100}
		cfg.CodeGeneration.ErrorHandling = false
	case ModeAssisted:
		cfg.Mode = ModeAssisted
		cfg.Filtering.ScoreThresholds = ScoreThresholds{Minimum: 10, Optimal: 90}
		cfg.TokenDetection.Scope = ScopeComprehensiveScan
	case ModeAutomatic:
		cfg.Mode = ModeAutomatic
		cfg.Filtering.ScoreThresholds = ScoreThresholds{Minimum: 30, Optimal: 75}
		cfg.TokenDetection.Scope = ScopeTargetedAnalysis
	case ModeCustom:
		cfg.Mode = ModeCustom
	}
}

// Load reads configuration from har-lolicode.yaml (if present) and
// environment variables prefixed HARLC_, following
// jnd-labs/aiblackbox's viper loader. A missing config file is not an
// error: every field already has a default.
func Load(configPath string) (AnalysisConfig, error) {
	v := viper.New()
	v.SetConfigName("har-lolicode")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HARLC")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("mode", string(def.Mode))
	v.SetDefault("filtering.score_thresholds.minimum", def.Filtering.ScoreThresholds.Minimum)
	v.SetDefault("filtering.score_thresholds.optimal", def.Filtering.ScoreThresholds.Optimal)
	v.SetDefault("filtering.resource_type_weights", def.Filtering.ResourceTypeWeights)
	v.SetDefault("token_detection.scope", string(def.TokenDetection.Scope))
	v.SetDefault("code_generation.template", string(def.CodeGeneration.Template))
	v.SetDefault("code_generation.include_comments", def.CodeGeneration.IncludeComments)
	v.SetDefault("code_generation.error_handling", def.CodeGeneration.ErrorHandling)
	v.SetDefault("parser.batch_size", def.Parser.BatchSize)
	v.SetDefault("parser.max_entry_size", def.Parser.MaxEntrySize)
	v.SetDefault("parser.large_response_threshold", def.Parser.LargeResponseThreshold)
	v.SetDefault("parser.skip_large_responses", def.Parser.SkipLargeResponses)
	v.SetDefault("parser.parse_timeout_seconds", def.Parser.ParseTimeoutSeconds)
	v.SetDefault("parser.include_timing", def.Parser.IncludeTiming)
	v.SetDefault("parser.include_cache", def.Parser.IncludeCache)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return AnalysisConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AnalysisConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AnalysisConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyMode(&cfg, cfg.Mode)
	return cfg, nil
}
