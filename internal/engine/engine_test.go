package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openevolve-go/openevolve/internal/archive"
	"github.com/openevolve-go/openevolve/internal/cascade"
	"github.com/openevolve-go/openevolve/internal/events"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/metaprompt"
	"github.com/openevolve-go/openevolve/internal/patch"
	"github.com/openevolve-go/openevolve/internal/store"
)

const seedProgram = `# EVOLVE-BLOCK-START solve
def solve(x):
    return x
# EVOLVE-BLOCK-END
`

// echoClient is a deterministic llm.Client stub that always returns
// the same structured patch response, grounded on the corpus's
// fixed-response test generators.
type echoClient struct {
	response string
}

func (c echoClient) Call(ctx context.Context, prompt string) (string, error) {
	return c.response, nil
}

func passingEvaluatorScript(t *testing.T, dir string) []string {
	t.Helper()
	path := filepath.Join(dir, "eval.sh")
	script := "#!/bin/sh\necho '{\"correct\": 1.0}'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return []string{"/bin/sh", path}
}

func newTestEngine(t *testing.T, llmResponse string) (*Engine, string, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	targetPath := filepath.Join(dir, "solve.py")
	require.NoError(t, os.WriteFile(targetPath, []byte(seedProgram), 0o644))

	dbPath := filepath.Join(dir, "store.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	patchEng := patch.New()

	directions := map[string]archive.Direction{"correct": {Maximize: true}}
	arch := archive.New(10, 3, 5, directions, 1)

	metaPool := metaprompt.New(8, 0, 4, 1, time.Unix(0, 0))

	casc := cascade.Cascade{
		Stages: []cascade.Stage{{
			Name: "correctness",
			Evaluators: []cascade.EvaluatorSpec{{
				Name:    "correctness",
				Command: passingEvaluatorScript(t, dir),
				Timeout: 5 * time.Second,
				Thresholds: map[string]cascade.Threshold{
					"correct": {Maximize: true, HasBound: true, Bound: 0.5},
				},
			}},
			MaxParallel: 1,
		}},
	}

	eventsDir := filepath.Join(dir, "events")
	sink, err := events.Open(eventsDir, "run-1")
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	client := llm.Client(echoClient{response: llmResponse})

	e := New(Config{
		TargetPath:      targetPath,
		TaskDescription: "Return x unchanged, optimizing for correctness.",
		Population:      2,
		SlotConcurrency: 2,
		EliteK:          2,
		NovelM:          1,
		YoungN:          1,
		IncludeFailures: 1,
		BudgetTokens:    4096,
		ApplySafeRevert: true,
		LLMTimeout:      5 * time.Second,
	}, st, patchEng, arch, metaPool, casc, client, sink, nil)

	return e, targetPath, st
}

func TestRunGeneration_AcceptedCandidateRoundTrips(t *testing.T) {
	resp := `{"diffs": [{"block": "solve", "search": "return x", "replace": "return x + 0"}]}`
	e, _, st := newTestEngine(t, resp)

	ctx := context.Background()
	require.NoError(t, e.EnsureRun(ctx, "run-1", "{}"))

	gen, err := e.RunGeneration(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 1, gen)

	records, err := st.ListCandidates(ctx, "run-1", 1)
	require.NoError(t, err)
	require.Len(t, records, 2)

	seen := map[string]bool{}
	for _, r := range records {
		require.False(t, seen[r.Candidate.CandID], "cand_id must be unique within a generation")
		seen[r.Candidate.CandID] = true
		require.True(t, store.Accepted(r.Evals))
		require.Contains(t, r.Candidate.CodeSnapshot, "return x + 0")
	}
}

func TestRunGeneration_IsIdempotentOnResume(t *testing.T) {
	resp := `{"diffs": [{"block": "solve", "search": "return x", "replace": "return x + 0"}]}`
	e, _, st := newTestEngine(t, resp)

	ctx := context.Background()
	require.NoError(t, e.EnsureRun(ctx, "run-1", "{}"))

	gen1, err := e.RunGeneration(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 1, gen1)

	gen2, err := e.RunGeneration(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, 2, gen2)

	// EnsureRun must be a no-op on an existing run rather than an error.
	require.NoError(t, e.EnsureRun(ctx, "run-1", "{}"))

	allRecords, err := st.ListCandidates(ctx, "run-1", -1)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range allRecords {
		require.False(t, ids[r.Candidate.CandID])
		ids[r.Candidate.CandID] = true
	}
	// 1 seed candidate (generation 0) plus 2 slots per generation.
	require.Len(t, allRecords, 5)
}

func TestRunGeneration_UnmatchedPatchIsRejectedNotFatal(t *testing.T) {
	// Searching for text absent from the block exercises the
	// rejected-not-fatal path: patch apply fails, the target file is
	// left unchanged, and each slot is still recorded as rejected.
	resp := `{"diffs": [{"block": "solve", "search": "no such text", "replace": "return x + 1"}]}`
	e, targetPath, st := newTestEngine(t, resp)

	ctx := context.Background()
	require.NoError(t, e.EnsureRun(ctx, "run-1", "{}"))

	_, err := e.RunGeneration(ctx, "run-1")
	require.NoError(t, err)

	records, err := st.ListCandidates(ctx, "run-1", 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		require.False(t, store.Accepted(r.Evals))
	}

	// The target file must be untouched since the patch never applied.
	b, err := os.ReadFile(targetPath)
	require.NoError(t, err)
	require.Equal(t, seedProgram, string(b))
}

func TestRunGeneration_DeterministicGivenSameSeedAndEchoResponse(t *testing.T) {
	resp := `{"diffs": [{"block": "solve", "search": "return x", "replace": "return x + 0"}]}`

	e1, _, st1 := newTestEngine(t, resp)
	ctx := context.Background()
	require.NoError(t, e1.EnsureRun(ctx, "run-1", "{}"))
	_, err := e1.RunGeneration(ctx, "run-1")
	require.NoError(t, err)
	records1, err := st1.ListCandidates(ctx, "run-1", 1)
	require.NoError(t, err)

	e2, _, st2 := newTestEngine(t, resp)
	require.NoError(t, e2.EnsureRun(ctx, "run-1", "{}"))
	_, err = e2.RunGeneration(ctx, "run-1")
	require.NoError(t, err)
	records2, err := st2.ListCandidates(ctx, "run-1", 1)
	require.NoError(t, err)

	require.Equal(t, len(records1), len(records2))
	for i := range records1 {
		require.Equal(t, records1[i].Candidate.CodeSnapshot, records2[i].Candidate.CodeSnapshot)
		require.Equal(t, len(records1[i].Evals), len(records2[i].Evals))
	}
}
