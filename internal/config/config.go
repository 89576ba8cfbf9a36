// Package config loads and validates the run configuration: task
// definition, population and generation counts, per-metric
// directions, and the sampler/cascade/archive/meta_prompt/llm
// sub-configs that parameterize each component.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/openevolve-go/openevolve/internal/errs"
)

// TaskConfig describes the task directory: the target source file
// and its EVOLVE-BLOCK-demarcated regions.
type TaskConfig struct {
	Workdir      string   `koanf:"workdir" validate:"required"`
	TargetFile   string   `koanf:"target_file" validate:"required"`
	Description  string   `koanf:"description" validate:"required"`
	EvolveBlocks []string `koanf:"evolve_blocks"`
}

// MetricConfig is one evaluator metric's optimisation direction and
// optional pass/fail threshold.
type MetricConfig struct {
	Direction string   `koanf:"direction" validate:"required,oneof=maximize minimize"`
	Threshold *float64 `koanf:"threshold"`
}

// SelectionConfig sizes the Archive's next-generation parent mixture.
type SelectionConfig struct {
	Elite int `koanf:"elite" validate:"gte=0"`
	Novel int `koanf:"novel" validate:"gte=0"`
	Young int `koanf:"young" validate:"gte=0"`
}

// SamplerConfig holds the PromptSampler's token budget and exemplar
// counts. BudgetTokens and IncludeFailures are passed to the engine.
// ElitesK and NovelM are validated but not used when the engine is
// wired; the engine sizes its elite and novel exemplar draws from
// selection.elite and selection.novel instead.
type SamplerConfig struct {
	BudgetTokens    int `koanf:"budget_tokens" validate:"required,gt=0"`
	ElitesK         int `koanf:"elites_k" validate:"gte=0"`
	NovelM          int `koanf:"novel_m" validate:"gte=0"`
	IncludeFailures int `koanf:"include_failures" validate:"gte=0"`
}

// EvolutionConfig holds the patch scope and revert behavior.
// ApplySafeRevert controls whether a candidate that fails evaluation
// is reverted. Scope is validated (blocks or wholefile) but not read
// by the patch engine: structured block edits and unified diffs are
// accepted whatever its value.
type EvolutionConfig struct {
	Scope           string `koanf:"scope" validate:"required,oneof=blocks wholefile"`
	ApplySafeRevert bool   `koanf:"apply_safe_revert"`
}

// EvaluatorConfig is one named evaluator stage in the cascade.
type EvaluatorConfig struct {
	Name     string   `koanf:"name" validate:"required"`
	Command  []string `koanf:"command" validate:"required,min=1"`
	TimeoutS int      `koanf:"timeout_s" validate:"required,gt=0"`
	Retries  int      `koanf:"retries" validate:"gte=0"`
}

// CascadeConfig is the ordered evaluator list plus cascade-level
// concurrency and cancellation policy.
type CascadeConfig struct {
	MaxParallel  int               `koanf:"max_parallel" validate:"required,gt=0"`
	CancelOnFail bool              `koanf:"cancel_on_fail"`
	Evaluators   []EvaluatorConfig `koanf:"evaluators" validate:"required,min=1,dive"`
}

// MetaPromptConfig sizes and tunes the meta-prompt population.
type MetaPromptConfig struct {
	Population    int     `koanf:"population" validate:"required,gt=0"`
	MutationProb  float64 `koanf:"mutation_prob" validate:"gte=0,lte=1"`
	SelectionTopK int     `koanf:"selection_top_k" validate:"required,gt=0"`
}

// ArchiveConfig sizes and tunes the Pareto archive.
type ArchiveConfig struct {
	Capacity        int `koanf:"capacity" validate:"required,gt=0"`
	KNovelty        int `koanf:"k_novelty" validate:"required,gt=0"`
	AgeingThreshold int `koanf:"ageing_threshold" validate:"gte=0"`
}

// LLMConfig selects and parameterizes the LLM backend.
type LLMConfig struct {
	Mode        string  `koanf:"mode" validate:"required"`
	Model       string  `koanf:"model" validate:"required"`
	Temperature float64 `koanf:"temperature" validate:"gte=0"`
	Endpoint    string  `koanf:"endpoint"`
	APIKey      string  `koanf:"api_key"`
	Region      string  `koanf:"region"`
	TimeoutS    int     `koanf:"timeout_s"`
}

// LoggingConfig mirrors the teacher's pkg/logging configuration
// surface, carried regardless of the spec's feature non-goals.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the full run configuration surface.
type Config struct {
	Task        TaskConfig              `koanf:"task" validate:"required"`
	Population  int                     `koanf:"population_size" validate:"required,gt=0"`
	Generations int                     `koanf:"generations" validate:"required,gt=0"`
	Concurrency int                     `koanf:"concurrency" validate:"gte=0"`
	Metrics     map[string]MetricConfig `koanf:"metrics" validate:"required,min=1,dive"`
	Selection   SelectionConfig         `koanf:"selection"`
	Sampler     SamplerConfig           `koanf:"sampler"`
	Evolution   EvolutionConfig         `koanf:"evolution"`
	Cascade     CascadeConfig           `koanf:"cascade"`
	MetaPrompt  MetaPromptConfig        `koanf:"meta_prompt"`
	Archive     ArchiveConfig           `koanf:"archive"`
	LLM         LLMConfig               `koanf:"llm"`
	Logging     LoggingConfig           `koanf:"logging"`
	Seed        int64                   `koanf:"seed"`
	StorePath   string                  `koanf:"store_path"`
}

// Validate performs cross-field checks that struct tags cannot
// express: sampler.elites_k and archive.k_novelty must not exceed
// archive.capacity, and every metric direction must be maximize or
// minimize. Selection counts are not checked, and evaluator output
// metrics are not checked against the declared metrics.
func (c *Config) Validate() error {
	if c.Sampler.ElitesK > c.Archive.Capacity {
		return &errs.ConfigError{Msg: "sampler.elites_k cannot exceed archive.capacity"}
	}
	if c.Archive.KNovelty > c.Archive.Capacity {
		return &errs.ConfigError{Msg: "archive.k_novelty cannot exceed archive.capacity"}
	}
	for _, m := range c.Metrics {
		if m.Direction != "maximize" && m.Direction != "minimize" {
			return &errs.ConfigError{Msg: fmt.Sprintf("metric direction must be maximize or minimize, got %q", m.Direction)}
		}
	}
	return nil
}

// validateStruct runs go-playground/validator's struct-tag checks,
// translating the first failure into a ConfigError.
func validateStruct(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return &errs.ConfigError{Msg: "config validation failed: " + err.Error()}
	}
	return nil
}
