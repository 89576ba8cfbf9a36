package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openevolve-go/openevolve/internal/errs"
)

// Store is the embedded-relational persistence layer. One Store wraps
// a single SQLite database file shared by all runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// initializes its schema. WAL mode gives concurrent readers with a
// single writer, matching the Store's single-writer discipline.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &errs.StoreError{Msg: fmt.Sprintf("open %s: %v", path, err)}
	}
	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		started_at  INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta_prompts (
		meta_prompt_id TEXT PRIMARY KEY,
		run_id         TEXT NOT NULL,
		template       TEXT NOT NULL,
		parent_ids     TEXT NOT NULL DEFAULT '',
		created_at     INTEGER NOT NULL,
		last_used      INTEGER NOT NULL,
		fitness        REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_meta_prompts_run ON meta_prompts(run_id);

	CREATE TABLE IF NOT EXISTS candidates (
		cand_id        TEXT PRIMARY KEY,
		run_id         TEXT NOT NULL,
		parent_ids     TEXT NOT NULL DEFAULT '',
		meta_prompt_id TEXT NOT NULL,
		filepath       TEXT NOT NULL,
		patch          TEXT NOT NULL,
		code_snapshot  TEXT NOT NULL,
		gen            INTEGER NOT NULL,
		novelty        REAL NOT NULL DEFAULT 0,
		age            INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_run_gen ON candidates(run_id, gen);

	CREATE TABLE IF NOT EXISTS evaluations (
		eval_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		cand_id    TEXT NOT NULL,
		metric     TEXT NOT NULL,
		value      REAL NOT NULL,
		passed     INTEGER NOT NULL,
		cost_ms    INTEGER NOT NULL DEFAULT 0,
		error      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_cand ON evaluations(cand_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &errs.StoreError{Msg: "init schema: " + err.Error()}
	}
	return nil
}

// CreateRun inserts a new run row. Returns a StoreError if run_id
// already exists (the engine refuses to re-create a run on resume).
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, config_json) VALUES (?, ?, ?)`,
		run.RunID, run.StartedAt.Unix(), run.ConfigJSON)
	if err != nil {
		return &errs.StoreError{Msg: "create run: " + err.Error()}
	}
	return nil
}

// RunExists reports whether a run with the given id has already been
// created, so the engine can refuse to re-create a run on resume.
func (s *Store) RunExists(ctx context.Context, runID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return false, &errs.StoreError{Msg: "check run existence: " + err.Error()}
	}
	return n > 0, nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var startedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, config_json FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &startedAt, &r.ConfigJSON)
	if err == sql.ErrNoRows {
		return Run{}, &errs.StoreError{Msg: "run not found: " + runID}
	}
	if err != nil {
		return Run{}, &errs.StoreError{Msg: "get run: " + err.Error()}
	}
	r.StartedAt = time.Unix(startedAt, 0).UTC()
	return r, nil
}

// ListRuns returns every run recorded in the store, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, config_json FROM runs ORDER BY started_at ASC, run_id ASC`)
	if err != nil {
		return nil, &errs.StoreError{Msg: "list runs: " + err.Error()}
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedAt int64
		if err := rows.Scan(&r.RunID, &startedAt, &r.ConfigJSON); err != nil {
			return nil, &errs.StoreError{Msg: "scan run: " + err.Error()}
		}
		r.StartedAt = time.Unix(startedAt, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.StoreError{Msg: "list runs: " + err.Error()}
	}
	return out, nil
}

// InsertCandidateWithEvals persists a candidate and all of its
// evaluation rows in one transaction, so resumption never observes a
// candidate with a missing metric.
func (s *Store) InsertCandidateWithEvals(ctx context.Context, c Candidate, evals []Evaluation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.StoreError{Msg: "begin tx: " + err.Error()}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO candidates (cand_id, run_id, parent_ids, meta_prompt_id, filepath, patch, code_snapshot, gen, novelty, age, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CandID, c.RunID, joinIDs(c.ParentIDs), c.MetaPromptID, c.Filepath, c.Patch,
		c.CodeSnapshot, c.Generation, c.Novelty, c.Age, c.CreatedAt.UnixNano())
	if err != nil {
		return &errs.StoreError{Msg: "insert candidate: " + err.Error()}
	}

	for _, e := range evals {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO evaluations (cand_id, metric, value, passed, cost_ms, error, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.CandID, e.Metric, e.Value, boolToInt(e.Passed), e.CostMS, e.Error, e.CreatedAt.UnixNano())
		if err != nil {
			return &errs.StoreError{Msg: "insert evaluation: " + err.Error()}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errs.StoreError{Msg: "commit candidate tx: " + err.Error()}
	}
	return nil
}

// GetCandidate fetches a single candidate by id, including its
// evaluation rows.
func (s *Store) GetCandidate(ctx context.Context, candID string) (CandidateRecord, error) {
	var c Candidate
	var parentIDs string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT cand_id, run_id, parent_ids, meta_prompt_id, filepath, patch, code_snapshot, gen, novelty, age, created_at
		 FROM candidates WHERE cand_id = ?`, candID).
		Scan(&c.CandID, &c.RunID, &parentIDs, &c.MetaPromptID, &c.Filepath,
			&c.Patch, &c.CodeSnapshot, &c.Generation, &c.Novelty, &c.Age, &createdAt)
	if err == sql.ErrNoRows {
		return CandidateRecord{}, &errs.StoreError{Msg: "candidate not found: " + candID}
	}
	if err != nil {
		return CandidateRecord{}, &errs.StoreError{Msg: "get candidate: " + err.Error()}
	}
	c.ParentIDs = splitIDs(parentIDs)
	c.CreatedAt = time.Unix(0, createdAt).UTC()

	evals, err := s.listEvaluations(ctx, candID)
	if err != nil {
		return CandidateRecord{}, err
	}
	return CandidateRecord{Candidate: c, Evals: evals}, nil
}

// CandidateRecord bundles a candidate with its evaluation rows.
type CandidateRecord struct {
	Candidate Candidate
	Evals     []Evaluation
}

// ListCandidates returns candidates for a run, optionally filtered to
// a single generation (pass gen < 0 for all generations), in
// deterministic order: by generation, then created_at, then cand_id.
func (s *Store) ListCandidates(ctx context.Context, runID string, gen int) ([]CandidateRecord, error) {
	query := `SELECT cand_id, run_id, parent_ids, meta_prompt_id, filepath, patch, code_snapshot, gen, novelty, age, created_at
	          FROM candidates WHERE run_id = ?`
	args := []any{runID}
	if gen >= 0 {
		query += ` AND gen = ?`
		args = append(args, gen)
	}
	query += ` ORDER BY gen ASC, created_at ASC, cand_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errs.StoreError{Msg: "list candidates: " + err.Error()}
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		var c Candidate
		var parentIDs string
		var createdAt int64
		if err := rows.Scan(&c.CandID, &c.RunID, &parentIDs, &c.MetaPromptID, &c.Filepath,
			&c.Patch, &c.CodeSnapshot, &c.Generation, &c.Novelty, &c.Age, &createdAt); err != nil {
			return nil, &errs.StoreError{Msg: "scan candidate: " + err.Error()}
		}
		c.ParentIDs = splitIDs(parentIDs)
		c.CreatedAt = time.Unix(0, createdAt).UTC()

		evals, err := s.listEvaluations(ctx, c.CandID)
		if err != nil {
			return nil, err
		}
		out = append(out, CandidateRecord{Candidate: c, Evals: evals})
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.StoreError{Msg: "list candidates: " + err.Error()}
	}
	return out, nil
}

func (s *Store) listEvaluations(ctx context.Context, candID string) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT eval_id, cand_id, metric, value, passed, cost_ms, error, created_at
		 FROM evaluations WHERE cand_id = ? ORDER BY eval_id ASC`, candID)
	if err != nil {
		return nil, &errs.StoreError{Msg: "list evaluations: " + err.Error()}
	}
	defer rows.Close()

	var out []Evaluation
	for rows.Next() {
		var e Evaluation
		var passed int
		var createdAt int64
		if err := rows.Scan(&e.EvalID, &e.CandID, &e.Metric, &e.Value, &passed, &e.CostMS, &e.Error, &createdAt); err != nil {
			return nil, &errs.StoreError{Msg: "scan evaluation: " + err.Error()}
		}
		e.Passed = passed != 0
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestGeneration returns the highest generation number recorded for
// a run, or -1 if the run has no candidates yet.
func (s *Store) LatestGeneration(ctx context.Context, runID string) (int, error) {
	var gen sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(gen) FROM candidates WHERE run_id = ?`, runID).Scan(&gen)
	if err != nil {
		return -1, &errs.StoreError{Msg: "latest generation: " + err.Error()}
	}
	if !gen.Valid {
		return -1, nil
	}
	return int(gen.Int64), nil
}

// InsertMetaPrompt persists a new meta-prompt template.
func (s *Store) InsertMetaPrompt(ctx context.Context, runID string, mp MetaPrompt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta_prompts (meta_prompt_id, run_id, template, parent_ids, created_at, last_used, fitness)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mp.MetaPromptID, runID, mp.Template, joinIDs(mp.ParentIDs),
		mp.CreatedAt.UnixNano(), mp.LastUsed.UnixNano(), mp.Fitness)
	if err != nil {
		return &errs.StoreError{Msg: "insert meta prompt: " + err.Error()}
	}
	return nil
}

// UpdateMetaPromptFitness updates a meta-prompt's fitness and
// last_used fields in place.
func (s *Store) UpdateMetaPromptFitness(ctx context.Context, metaPromptID string, fitness float64, lastUsed time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE meta_prompts SET fitness = ?, last_used = ? WHERE meta_prompt_id = ?`,
		fitness, lastUsed.UnixNano(), metaPromptID)
	if err != nil {
		return &errs.StoreError{Msg: "update meta prompt fitness: " + err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errs.StoreError{Msg: "meta prompt not found: " + metaPromptID}
	}
	return nil
}

// ListMetaPrompts returns all meta-prompts for a run, ordered by
// created_at then meta_prompt_id.
func (s *Store) ListMetaPrompts(ctx context.Context, runID string) ([]MetaPrompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT meta_prompt_id, template, parent_ids, created_at, last_used, fitness
		 FROM meta_prompts WHERE run_id = ? ORDER BY created_at ASC, meta_prompt_id ASC`, runID)
	if err != nil {
		return nil, &errs.StoreError{Msg: "list meta prompts: " + err.Error()}
	}
	defer rows.Close()

	var out []MetaPrompt
	for rows.Next() {
		var mp MetaPrompt
		var parentIDs string
		var createdAt, lastUsed int64
		if err := rows.Scan(&mp.MetaPromptID, &mp.Template, &parentIDs, &createdAt, &lastUsed, &mp.Fitness); err != nil {
			return nil, &errs.StoreError{Msg: "scan meta prompt: " + err.Error()}
		}
		mp.ParentIDs = splitIDs(parentIDs)
		mp.CreatedAt = time.Unix(0, createdAt).UTC()
		mp.LastUsed = time.Unix(0, lastUsed).UTC()
		out = append(out, mp)
	}
	return out, rows.Err()
}

func joinIDs(ids []string) string { return strings.Join(ids, ",") }

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
