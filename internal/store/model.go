// Package store persists runs, candidates, evaluations, and
// meta-prompts in an embedded SQLite database, making runs resumable.
package store

import "time"

// Run is a single evolution run, identified by a stable string id.
// Immutable after creation except for appended children.
type Run struct {
	RunID      string
	StartedAt  time.Time
	ConfigJSON string
}

// Candidate is a single produced program variant.
type Candidate struct {
	CandID        string
	RunID         string
	ParentIDs     []string
	MetaPromptID  string
	Filepath      string
	Patch         string
	CodeSnapshot  string
	Generation    int
	Novelty       float64
	Age           int
	CreatedAt     time.Time
}

// Evaluation is one (candidate, metric) row.
type Evaluation struct {
	EvalID    int64
	CandID    string
	Metric    string
	Value     float64
	Passed    bool
	CostMS    int64
	Error     string
	CreatedAt time.Time
}

// Accepted reports whether every evaluation row for a candidate passed.
// A candidate with zero evaluation rows is not accepted.
func Accepted(evals []Evaluation) bool {
	if len(evals) == 0 {
		return false
	}
	for _, e := range evals {
		if !e.Passed {
			return false
		}
	}
	return true
}

// MetaPrompt is an instruction template that co-evolves via mutation
// and fitness attribution.
type MetaPrompt struct {
	MetaPromptID string
	Template     string
	ParentIDs    []string
	CreatedAt    time.Time
	LastUsed     time.Time
	Fitness      float64
}
