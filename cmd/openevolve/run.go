package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// RunCmd starts a brand-new run: it refuses to reuse an existing
// run_id and always begins at generation 0.
type RunCmd struct {
	Config      string   `help:"YAML config file path." type:"existingfile" name:"config" short:"c" required:""`
	RunID       string   `help:"Run identifier. Defaults to a generated UUID." name:"run-id"`
	Generations int      `help:"Number of generations to run. Defaults to the config's generations value." name:"generations"`
	Set         []string `help:"Override a dotted config key, e.g. --set seed=2 (repeatable)." name:"set"`
}

func (r *RunCmd) Run() error {
	overrides, err := parseSetFlags(r.Set)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(r.Config, overrides, CLI.Debug)
	if err != nil {
		return err
	}

	runID := r.RunID
	if runID == "" {
		runID = newRunID()
	}

	c, err := wireComponents(cfg, runID)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	exists, err := c.store.RunExists(ctx, runID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("run %q already exists; use 'resume' to continue it", runID)
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}

	eng := buildEngine(cfg, c)
	if err := eng.EnsureRun(ctx, runID, string(configJSON)); err != nil {
		return err
	}

	generations := r.Generations
	if generations <= 0 {
		generations = cfg.Generations
	}

	fmt.Printf("started run %s (%d generations)\n", runID, generations)
	return driveGenerations(ctx, eng, runID, generations)
}
