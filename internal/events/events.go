// Package events writes an append-only JSONL log of engine activity,
// one record per slot per generation, so a run's history can be
// replayed or tailed without querying the Store.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one structured record emitted by the Engine at the end of
// a slot's processing (spec.md §4.7 step 8).
type Event struct {
	RunID      string            `json:"run_id"`
	Generation int               `json:"generation"`
	Slot       int               `json:"slot"`
	CandID     string            `json:"cand_id,omitempty"`
	MetaPromptID string          `json:"meta_prompt_id,omitempty"`
	Outcome    string            `json:"outcome"` // "accepted" or "rejected"
	Error      string            `json:"error,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Sink appends Events to a single run's events.jsonl file.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// Open creates (or appends to) <dir>/<run_id>/events.jsonl.
func Open(dir, runID string) (*Sink, error) {
	runDir := filepath.Join(dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(runDir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Sink{file: f, enc: json.NewEncoder(f)}, nil
}

// Emit appends one event record. Safe for concurrent use.
func (s *Sink) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
