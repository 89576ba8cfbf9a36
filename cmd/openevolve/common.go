package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openevolve-go/openevolve/internal/archive"
	"github.com/openevolve-go/openevolve/internal/cascade"
	"github.com/openevolve-go/openevolve/internal/config"
	"github.com/openevolve-go/openevolve/internal/engine"
	"github.com/openevolve-go/openevolve/internal/events"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/logging"
	"github.com/openevolve-go/openevolve/internal/metaprompt"
	"github.com/openevolve-go/openevolve/internal/patch"
	"github.com/openevolve-go/openevolve/internal/registry"
	"github.com/openevolve-go/openevolve/internal/store"
	"github.com/openevolve-go/openevolve/internal/telemetry"
)

// loadConfig loads and validates the run configuration, wiring CLI
// overrides on top of the file and environment layers, and
// configures the global logger from the result.
func loadConfig(configFile string, overrides map[string]any, debug bool) (*config.Config, error) {
	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if debug {
		level = slog.LevelDebug
	}
	logging.Configure(level, cfg.Logging.Format, nil)

	return cfg, nil
}

// buildArchiveDirections converts the configured metric directions
// into the Archive's Pareto-dominance form.
func buildArchiveDirections(cfg *config.Config) map[string]archive.Direction {
	directions := make(map[string]archive.Direction, len(cfg.Metrics))
	for name, m := range cfg.Metrics {
		directions[name] = archive.Direction{Maximize: m.Direction == "maximize"}
	}
	return directions
}

// buildCascadeThresholds flattens every configured metric's pass/fail
// bound into one table shared by all evaluators: an evaluator only
// ever reports the metrics it actually computes, so handing every
// evaluator the full table is equivalent to a per-evaluator subset
// and far simpler to wire.
func buildCascadeThresholds(cfg *config.Config) map[string]cascade.Threshold {
	thresholds := make(map[string]cascade.Threshold, len(cfg.Metrics))
	for name, m := range cfg.Metrics {
		t := cascade.Threshold{Maximize: m.Direction == "maximize"}
		if m.Threshold != nil {
			t.HasBound = true
			t.Bound = *m.Threshold
		}
		thresholds[name] = t
	}
	return thresholds
}

// buildCascade turns the flat evaluator list into one sequential
// stage per evaluator. The cascade's own MaxParallel/CancelOnFail
// settings already operate at the stage level, so a single-evaluator
// stage per entry is the simplest policy that still honours
// cancel_on_fail between evaluators in declaration order.
func buildCascade(cfg *config.Config) cascade.Cascade {
	thresholds := buildCascadeThresholds(cfg)

	stages := make([]cascade.Stage, 0, len(cfg.Cascade.Evaluators))
	for _, ev := range cfg.Cascade.Evaluators {
		stages = append(stages, cascade.Stage{
			Name:        ev.Name,
			MaxParallel: cfg.Cascade.MaxParallel,
			Evaluators: []cascade.EvaluatorSpec{{
				Name:       ev.Name,
				Command:    ev.Command,
				Timeout:    time.Duration(ev.TimeoutS) * time.Second,
				Retries:    ev.Retries,
				Thresholds: thresholds,
			}},
		})
	}

	return cascade.Cascade{Stages: stages, CancelOnFail: cfg.Cascade.CancelOnFail}
}

// buildLLMClient instantiates the backend named by cfg.LLM.Mode from
// the llm.Registry, translating its config fields into the untyped
// registry.Config map the backend constructors expect.
func buildLLMClient(cfg *config.Config) (llm.Client, error) {
	rc := registry.Config{
		"model":       cfg.LLM.Model,
		"temperature": cfg.LLM.Temperature,
	}
	if cfg.LLM.APIKey != "" {
		rc["api_key"] = cfg.LLM.APIKey
	}
	if cfg.LLM.Endpoint != "" {
		rc["base_url"] = cfg.LLM.Endpoint
		rc["endpoint"] = cfg.LLM.Endpoint
	}
	if cfg.LLM.Region != "" {
		rc["region"] = cfg.LLM.Region
	}
	return llm.Registry.Create(cfg.LLM.Mode, rc)
}

// components bundles every dependency the Engine needs, so run.go
// and resume.go can share the same wiring and a single defer cleans
// up the Store.
type components struct {
	store     *store.Store
	patchEng  *patch.Engine
	arch      *archive.Archive
	metaPool  *metaprompt.Pool
	cascade   cascade.Cascade
	llmClient llm.Client
	eventSink *events.Sink
	metrics   *telemetry.Metrics
}

func (c *components) Close() error {
	if c.eventSink != nil {
		c.eventSink.Close()
	}
	return c.store.Close()
}

// wireComponents opens the Store and constructs every Engine
// dependency from the loaded configuration. seed comes from
// cfg.Seed; runID is used only to name the event sink.
func wireComponents(cfg *config.Config, runID string) (*components, error) {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var eventSink *events.Sink
	resultsDir := resultsDirFor(cfg)
	if resultsDir != "" {
		eventSink, err = events.Open(resultsDir, runID)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	seed := uint64(cfg.Seed)
	now := time.Now().UTC()

	return &components{
		store:     st,
		patchEng:  patch.New(),
		arch:      archive.New(cfg.Archive.Capacity, cfg.Archive.KNovelty, cfg.Archive.AgeingThreshold, buildArchiveDirections(cfg), seed),
		metaPool:  metaprompt.New(cfg.MetaPrompt.Population, cfg.MetaPrompt.MutationProb, cfg.MetaPrompt.SelectionTopK, seed, now),
		cascade:   buildCascade(cfg),
		llmClient: llmClient,
		eventSink: eventSink,
		metrics:   &telemetry.Metrics{},
	}, nil
}

// resultsDirFor derives the advisory mirror-file root from the
// store path's directory, e.g. "./data/openevolve.db" -> "./data/runs".
func resultsDirFor(cfg *config.Config) string {
	if cfg.StorePath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(cfg.StorePath), "runs")
}

// buildEngine assembles the Engine config from the run configuration
// and the target file path.
func buildEngine(cfg *config.Config, c *components) *engine.Engine {
	slotConcurrency := cfg.Concurrency
	if slotConcurrency <= 0 {
		slotConcurrency = cfg.Population
	}

	eng := engine.Config{
		TargetPath:      filepath.Join(cfg.Task.Workdir, cfg.Task.TargetFile),
		TaskDescription: cfg.Task.Description,
		Population:      cfg.Population,
		SlotConcurrency: slotConcurrency,
		EliteK:          cfg.Selection.Elite,
		NovelM:          cfg.Selection.Novel,
		YoungN:          cfg.Selection.Young,
		IncludeFailures: cfg.Sampler.IncludeFailures,
		BudgetTokens:    cfg.Sampler.BudgetTokens,
		ApplySafeRevert: cfg.Evolution.ApplySafeRevert,
		ResultsDir:      resultsDirFor(cfg),
	}
	if cfg.LLM.TimeoutS > 0 {
		eng.LLMTimeout = time.Duration(cfg.LLM.TimeoutS) * time.Second
	}
	return engine.New(eng, c.store, c.patchEng, c.arch, c.metaPool, c.cascade, c.llmClient, c.eventSink, c.metrics)
}

// driveGenerations runs up to n further generations, stopping early
// and returning the error if any generation fails fatally.
func driveGenerations(ctx context.Context, eng *engine.Engine, runID string, n int) error {
	for i := 0; i < n; i++ {
		gen, err := eng.RunGeneration(ctx, runID)
		if err != nil {
			return fmt.Errorf("generation %d: %w", gen, err)
		}
		fmt.Printf("run %s: generation %d complete\n", runID, gen)
	}
	return nil
}

func newRunID() string {
	return uuid.NewString()
}

// openStore opens the store at path for a read-only inspection
// command (list, show), which do not need the rest of the Engine's
// dependencies.
func openStore(path string) (*store.Store, error) {
	return store.Open(path)
}

// parseSetFlags turns repeated "--set key=value" flags into the
// dotted-key override map config.Load expects.
func parseSetFlags(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	overrides := make(map[string]any, len(sets))
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", kv)
		}
		overrides[key] = value
	}
	return overrides, nil
}
