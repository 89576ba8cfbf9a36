package main

import (
	"context"
	"fmt"
)

// ResumeCmd continues an existing run from its latest persisted
// generation. It refuses to operate on a run_id the Store has never
// seen, since that is what "run" is for.
type ResumeCmd struct {
	Config      string   `help:"YAML config file path." type:"existingfile" name:"config" short:"c" required:""`
	RunID       string   `help:"Run identifier to continue." name:"run-id" required:""`
	Generations int      `help:"Number of further generations to run. Defaults to the config's generations value." name:"generations"`
	Set         []string `help:"Override a dotted config key, e.g. --set seed=2 (repeatable)." name:"set"`
}

func (r *ResumeCmd) Run() error {
	overrides, err := parseSetFlags(r.Set)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(r.Config, overrides, CLI.Debug)
	if err != nil {
		return err
	}

	c, err := wireComponents(cfg, r.RunID)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	exists, err := c.store.RunExists(ctx, r.RunID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("no such run %q; use 'run' to start it", r.RunID)
	}

	latest, err := c.store.LatestGeneration(ctx, r.RunID)
	if err != nil {
		return err
	}

	eng := buildEngine(cfg, c)
	generations := r.Generations
	if generations <= 0 {
		generations = cfg.Generations
	}

	fmt.Printf("resuming run %s from generation %d (%d further generations)\n", r.RunID, latest+1, generations)
	return driveGenerations(ctx, eng, r.RunID, generations)
}
