package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/openevolve-go/openevolve/internal/store"
)

// ListCmd lists runs in a store, or candidates within one run when
// --run-id is given.
type ListCmd struct {
	StorePath  string `help:"Path to the store database file." name:"store" required:"" type:"path"`
	RunID      string `help:"Restrict listing to candidates of this run." name:"run-id"`
	Generation int    `help:"Restrict to one generation (only with --run-id)." name:"generation" default:"-1"`
}

func (l *ListCmd) Run() error {
	st, err := openStore(l.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if l.RunID == "" {
		return listRuns(ctx, st)
	}
	return listCandidates(ctx, st, l.RunID, l.Generation)
}

func listRuns(ctx context.Context, st *store.Store) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	fmt.Printf("%-36s  %-20s\n", "RUN_ID", "STARTED_AT")
	for _, r := range runs {
		fmt.Printf("%-36s  %-20s\n", r.RunID, r.StartedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func listCandidates(ctx context.Context, st *store.Store, runID string, gen int) error {
	records, err := st.ListCandidates(ctx, runID, gen)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no candidates recorded")
		return nil
	}
	fmt.Printf("%-36s  %-5s  %-9s  %s\n", "CAND_ID", "GEN", "ACCEPTED", "METRICS")
	for _, rec := range records {
		metrics := make([]string, 0, len(rec.Evals))
		for _, e := range rec.Evals {
			metrics = append(metrics, fmt.Sprintf("%s=%.4g", e.Metric, e.Value))
		}
		sort.Strings(metrics)
		fmt.Printf("%-36s  %-5d  %-9t  %v\n", rec.Candidate.CandID, rec.Candidate.Generation, store.Accepted(rec.Evals), metrics)
	}
	return nil
}
