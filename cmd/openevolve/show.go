package main

import (
	"context"
	"fmt"
)

// ShowCmd prints full detail for one candidate: its lineage, patch,
// post-apply snapshot, and every evaluation row.
type ShowCmd struct {
	StorePath string `help:"Path to the store database file." name:"store" required:"" type:"path"`
	CandID    string `arg:"" help:"Candidate id to show."`
}

func (s *ShowCmd) Run() error {
	st, err := openStore(s.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.GetCandidate(context.Background(), s.CandID)
	if err != nil {
		return err
	}

	fmt.Printf("cand_id:        %s\n", rec.Candidate.CandID)
	fmt.Printf("run_id:         %s\n", rec.Candidate.RunID)
	fmt.Printf("parent_ids:     %v\n", rec.Candidate.ParentIDs)
	fmt.Printf("meta_prompt_id: %s\n", rec.Candidate.MetaPromptID)
	fmt.Printf("generation:     %d\n", rec.Candidate.Generation)
	fmt.Printf("novelty:        %.4f\n", rec.Candidate.Novelty)
	fmt.Printf("age:            %d\n", rec.Candidate.Age)
	fmt.Printf("created_at:     %s\n", rec.Candidate.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Println()
	fmt.Println("--- patch ---")
	fmt.Println(rec.Candidate.Patch)
	fmt.Println()
	fmt.Println("--- evaluations ---")
	for _, e := range rec.Evals {
		status := "pass"
		if !e.Passed {
			status = "fail"
		}
		fmt.Printf("  %-20s value=%.6g  %s  cost_ms=%d  %s\n", e.Metric, e.Value, status, e.CostMS, e.Error)
	}
	fmt.Println()
	fmt.Println("--- code snapshot ---")
	fmt.Println(rec.Candidate.CodeSnapshot)
	return nil
}
