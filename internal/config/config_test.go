package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openevolve-go/openevolve/internal/errs"
)

const minimalYAML = `
task:
  workdir: /tmp/task
  target_file: solve.py
  description: Score a list of values as accurately as possible.
population_size: 10
generations: 5
metrics:
  correct:
    direction: maximize
    threshold: 0.9
sampler:
  budget_tokens: 4096
evolution:
  scope: blocks
cascade:
  max_parallel: 2
  evaluators:
    - name: correctness
      command: ["/usr/bin/env", "python3", "eval.py"]
      timeout_s: 30
meta_prompt:
  population: 8
  selection_top_k: 4
archive:
  capacity: 50
  k_novelty: 5
llm:
  mode: echo
  model: echo
seed: 1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Population)
	require.Equal(t, "blocks", cfg.Evolution.Scope)
	require.Equal(t, "maximize", cfg.Metrics["correct"].Direction)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	t.Setenv("OPENEVOLVE_POPULATION_SIZE", "25")
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Population)
}

func TestLoad_OverridesBeatEnvAndFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	t.Setenv("OPENEVOLVE_POPULATION_SIZE", "25")
	cfg, err := Load(path, map[string]any{"population_size": 99})
	require.NoError(t, err)
	require.Equal(t, 99, cfg.Population)
}

func TestLoad_MissingRequiredFieldFails(t *testing.T) {
	path := writeConfig(t, `
task:
  workdir: /tmp
  target_file: a.py
generations: 5
metrics:
  correct:
    direction: maximize
sampler:
  budget_tokens: 100
evolution:
  scope: blocks
cascade:
  max_parallel: 1
  evaluators:
    - name: c
      command: ["x"]
      timeout_s: 1
meta_prompt:
  population: 1
  selection_top_k: 1
archive:
  capacity: 1
  k_novelty: 1
llm:
  mode: echo
  model: echo
`)
	_, err := Load(path, nil)
	require.Error(t, err)
	var cfgErr *errs.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidate_RejectsUnknownMetricDirection(t *testing.T) {
	cfg := &Config{
		Metrics: map[string]MetricConfig{"m": {Direction: "sideways"}},
		Archive: ArchiveConfig{Capacity: 10, KNovelty: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsKNoveltyAboveCapacity(t *testing.T) {
	cfg := &Config{
		Metrics: map[string]MetricConfig{"m": {Direction: "maximize"}},
		Archive: ArchiveConfig{Capacity: 5, KNovelty: 10},
	}
	err := cfg.Validate()
	require.Error(t, err)
}
