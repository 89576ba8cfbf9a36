// Package engine implements the generational orchestrator: the
// 8-step loop (spec.md §4.7) tying MetaPromptPool, Archive,
// PromptSampler, the LLM client, PatchEngine, and EvaluatorCascade
// together into one resumable, transactionally-persisted run.
package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openevolve-go/openevolve/internal/archive"
	"github.com/openevolve-go/openevolve/internal/cascade"
	"github.com/openevolve-go/openevolve/internal/errs"
	"github.com/openevolve-go/openevolve/internal/events"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/metaprompt"
	"github.com/openevolve-go/openevolve/internal/patch"
	"github.com/openevolve-go/openevolve/internal/results"
	"github.com/openevolve-go/openevolve/internal/sampler"
	"github.com/openevolve-go/openevolve/internal/store"
	"github.com/openevolve-go/openevolve/internal/telemetry"
)

// Config parameterizes one Engine instance. All fields are required
// unless noted.
type Config struct {
	TargetPath      string
	TaskDescription string

	Population      int // slots per generation ("n" in spec.md §4.7 step 2)
	SlotConcurrency int // "M" in spec.md §5

	EliteK          int
	NovelM          int
	YoungN          int
	IncludeFailures int
	BudgetTokens    int

	ApplySafeRevert bool
	LLMTimeout      time.Duration // 0 means no per-call timeout

	ResultsDir string // optional; empty disables advisory mirror files
}

// Engine is the per-run orchestrator. One Engine instance drives one
// run from generation to generation; it is not safe to call
// RunGeneration concurrently on the same Engine.
type Engine struct {
	cfg Config

	store      *store.Store
	patchEng   *patch.Engine
	arch       *archive.Archive
	metaPool   *metaprompt.Pool
	cascade    cascade.Cascade
	llmClient  llm.Client
	eventSink  *events.Sink
	metrics    *telemetry.Metrics

	// fileMu serialises the snapshot->apply->evaluate->commit/revert
	// critical section across slots, since the target file is shared
	// mutable state (spec.md §5 "Shared resources").
	fileMu sync.Mutex

	failMu   sync.Mutex
	failures []sampler.Exemplar
}

// New builds an Engine from its wired dependencies. metrics may be
// nil, in which case telemetry counters are not updated.
func New(cfg Config, st *store.Store, patchEng *patch.Engine, arch *archive.Archive, metaPool *metaprompt.Pool, casc cascade.Cascade, llmClient llm.Client, eventSink *events.Sink, metrics *telemetry.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     st,
		patchEng:  patchEng,
		arch:      arch,
		metaPool:  metaPool,
		cascade:   casc,
		llmClient: llmClient,
		eventSink: eventSink,
		metrics:   metrics,
	}
}

// EnsureRun creates runID in the Store if it does not already exist.
// Resuming an existing run is not an error; re-creating its row is.
// A brand-new run also gets its generation-0 seed candidate (spec.md
// §3 invariant (e)): the untouched target file, with empty
// parent_ids, evaluated once so LatestGeneration returns 0 and the
// first LLM-driven round is correctly numbered generation 1.
func (e *Engine) EnsureRun(ctx context.Context, runID, configJSON string) error {
	exists, err := e.store.RunExists(ctx, runID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := e.store.CreateRun(ctx, store.Run{RunID: runID, StartedAt: time.Now().UTC(), ConfigJSON: configJSON}); err != nil {
		return err
	}
	return e.insertSeedCandidate(ctx, runID)
}

// insertSeedCandidate persists the run's generation-0 candidate: the
// task's initial target file, scored by the same cascade every later
// candidate goes through. A seed that clears every threshold is also
// inserted into the Archive so the first real generation has a
// legitimate parent to sample from.
func (e *Engine) insertSeedCandidate(ctx context.Context, runID string) error {
	code, err := os.ReadFile(e.cfg.TargetPath)
	if err != nil {
		return &errs.PatchApplyError{Msg: "read target file for seed candidate: " + err.Error()}
	}

	rows := e.cascade.Run(ctx, e.cfg.TargetPath)
	evals := rowsToEvaluations(rows)
	accepted := store.Accepted(evals)

	now := time.Now().UTC()
	candID := uuid.NewString()
	candidate := store.Candidate{
		CandID:       candID,
		RunID:        runID,
		ParentIDs:    nil,
		MetaPromptID: "",
		Filepath:     e.cfg.TargetPath,
		Patch:        "",
		CodeSnapshot: string(code),
		Generation:   0,
		CreatedAt:    now,
	}
	if err := e.store.InsertCandidateWithEvals(ctx, candidate, evals); err != nil {
		return err
	}

	if accepted {
		member := archive.Member{
			CandID:       candID,
			MetaPromptID: "",
			Metrics:      metricsFromRows(rows),
			CreatedAt:    now,
		}
		e.arch.Insert(member)
	}
	return nil
}

// RunGeneration executes exactly one generation for runID: it reads
// the highest persisted generation, advances to gen+1, and runs
// Population slots concurrently (bounded by SlotConcurrency). It
// returns the generation number just completed.
//
// A half-written generation cannot exist: every slot's Store write is
// one transaction, and a fatal error (patch revert failure, Store
// failure) aborts the whole call without silently continuing.
func (e *Engine) RunGeneration(ctx context.Context, runID string) (int, error) {
	latest, err := e.store.LatestGeneration(ctx, runID)
	if err != nil {
		return 0, err
	}
	gen := latest + 1

	templates := e.metaPool.Sample(e.cfg.Population, time.Now())
	if len(templates) == 0 {
		return gen, errors.New("engine: meta-prompt pool produced no templates")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SlotConcurrency)

	var fatalMu sync.Mutex
	var fatal error

	for slot := 0; slot < e.cfg.Population; slot++ {
		slot := slot
		template := templates[slot%len(templates)]
		g.Go(func() error {
			if err := e.runSlot(gctx, runID, gen, slot, template); err != nil {
				if errs.Fatal(err) {
					fatalMu.Lock()
					if fatal == nil {
						fatal = err
					}
					fatalMu.Unlock()
					return err
				}
				// Non-fatal slot errors are already recorded as
				// rejected candidates and events; nothing more to do.
			}
			return nil
		})
	}

	_ = g.Wait()

	if fatal != nil {
		return gen, fatal
	}

	if e.metrics != nil {
		e.metrics.GenerationsCompleted++
	}
	return gen, nil
}

// runSlot performs steps 3-8 of spec.md §4.7 for one slot.
func (e *Engine) runSlot(ctx context.Context, runID string, gen, slot int, template metaprompt.Template) error {
	parents := e.arch.Sample(e.cfg.EliteK, e.cfg.NovelM, e.cfg.YoungN)
	eliteMembers := e.arch.Sample(e.cfg.EliteK, 0, 0)
	novelMembers := e.arch.Sample(0, e.cfg.NovelM, 0)

	elites := e.exemplarsFromMembers(ctx, eliteMembers)
	novel := e.exemplarsFromMembers(ctx, novelMembers)
	failures := e.sampleFailures(e.cfg.IncludeFailures)

	currentCode, err := os.ReadFile(e.cfg.TargetPath)
	if err != nil {
		return &errs.PatchApplyError{Msg: "read target file: " + err.Error()}
	}

	prompt, err := sampler.Assemble(sampler.Input{
		MetaPromptTemplate: template.Body,
		TaskDescription:    e.cfg.TaskDescription,
		CurrentCode:        string(currentCode),
		Elites:             elites,
		Novel:              novel,
		Failures:           failures,
		BudgetTokens:       e.cfg.BudgetTokens,
	})
	if err != nil {
		return e.recordRejected(ctx, runID, gen, slot, template, parents, "", err.Error())
	}

	llmCtx := ctx
	if e.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, e.cfg.LLMTimeout)
		defer cancel()
	}

	raw, callErr := e.llmClient.Call(llmCtx, prompt)
	if callErr != nil {
		msg := "llm_timeout"
		var timeoutErr *errs.LLMTimeout
		if !errors.As(callErr, &timeoutErr) && !errors.Is(callErr, context.DeadlineExceeded) {
			msg = callErr.Error()
		}
		return e.recordRejected(ctx, runID, gen, slot, template, parents, "", msg)
	}

	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	result, applyErr := e.patchEng.Apply(e.cfg.TargetPath, raw)
	if applyErr != nil {
		return e.recordRejected(ctx, runID, gen, slot, template, parents, raw, applyErr.Error())
	}

	rows := e.cascade.Run(ctx, e.cfg.TargetPath)
	evals := rowsToEvaluations(rows)
	accepted := store.Accepted(evals)

	if !accepted && e.cfg.ApplySafeRevert {
		if revertErr := e.patchEng.Revert(e.cfg.TargetPath, result.Original); revertErr != nil {
			return revertErr
		}
	}

	codeSnapshot := result.Applied
	if !accepted && e.cfg.ApplySafeRevert {
		codeSnapshot = string(result.Original)
	}

	candID := uuid.NewString()
	now := time.Now().UTC()
	candidate := store.Candidate{
		CandID:       candID,
		RunID:        runID,
		ParentIDs:    memberIDs(parents),
		MetaPromptID: template.ID,
		Filepath:     e.cfg.TargetPath,
		Patch:        raw,
		CodeSnapshot: codeSnapshot,
		Generation:   gen,
		CreatedAt:    now,
	}
	if err := e.store.InsertCandidateWithEvals(ctx, candidate, evals); err != nil {
		return err
	}

	metrics := metricsFromRows(rows)

	if accepted {
		member := archive.Member{
			CandID:       candID,
			MetaPromptID: template.ID,
			Metrics:      metrics,
			CreatedAt:    now,
		}
		rank, _, evicted := e.arch.Insert(member)
		e.metaPool.Attribute(template.ID, true, rank)
		if evicted && e.metrics != nil {
			e.metrics.ArchiveEvictions++
		}
		if e.metrics != nil {
			e.metrics.CandidatesAccepted++
		}
	} else {
		e.metaPool.Attribute(template.ID, false, 0)
		e.pushFailure(sampler.Exemplar{
			CandID:    candID,
			Code:      codeSnapshot,
			Metrics:   metrics,
			CreatedAt: now.UnixNano(),
		})
		if e.metrics != nil {
			e.metrics.CandidatesRejected++
		}
	}
	if e.metrics != nil {
		e.metrics.CandidatesTotal++
	}

	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	e.emitEvent(events.Event{
		RunID:        runID,
		Generation:   gen,
		Slot:         slot,
		CandID:       candID,
		MetaPromptID: template.ID,
		Outcome:      outcome,
		Metrics:      metrics,
		Timestamp:    now,
	})
	e.writeAdvisory(runID, gen, slot, prompt, raw, codeSnapshot, candID, template.ID, memberIDs(parents), metrics, accepted, "")

	return nil
}

// recordRejected persists a rejected candidate for a slot that never
// reached evaluation (prompt assembly, LLM call, or patch apply
// failed), per spec.md §4.7 step 4's "no patch applied" case.
func (e *Engine) recordRejected(ctx context.Context, runID string, gen, slot int, template metaprompt.Template, parents []archive.Member, raw, errMsg string) error {
	candID := uuid.NewString()
	now := time.Now().UTC()

	codeSnapshot := ""
	if b, err := os.ReadFile(e.cfg.TargetPath); err == nil {
		codeSnapshot = string(b)
	}

	candidate := store.Candidate{
		CandID:       candID,
		RunID:        runID,
		ParentIDs:    memberIDs(parents),
		MetaPromptID: template.ID,
		Filepath:     e.cfg.TargetPath,
		Patch:        raw,
		CodeSnapshot: codeSnapshot,
		Generation:   gen,
		CreatedAt:    now,
	}
	evals := []store.Evaluation{{
		Metric:    "__slot__",
		Value:     0,
		Passed:    false,
		Error:     errMsg,
		CreatedAt: now,
	}}

	if err := e.store.InsertCandidateWithEvals(ctx, candidate, evals); err != nil {
		return err
	}

	e.metaPool.Attribute(template.ID, false, 0)
	if e.metrics != nil {
		e.metrics.CandidatesTotal++
		e.metrics.CandidatesRejected++
	}

	e.emitEvent(events.Event{
		RunID:        runID,
		Generation:   gen,
		Slot:         slot,
		CandID:       candID,
		MetaPromptID: template.ID,
		Outcome:      "rejected",
		Error:        errMsg,
		Timestamp:    now,
	})
	e.writeAdvisory(runID, gen, slot, "", raw, codeSnapshot, candID, template.ID, memberIDs(parents), nil, false, errMsg)

	return nil
}

func (e *Engine) emitEvent(ev events.Event) {
	if e.eventSink == nil {
		return
	}
	_ = e.eventSink.Emit(ev)
}

func (e *Engine) writeAdvisory(runID string, gen, slot int, prompt, patchText, snapshot, candID, metaPromptID string, parentIDs []string, metrics map[string]float64, accepted bool, errMsg string) {
	if e.cfg.ResultsDir == "" {
		return
	}
	_ = results.WriteSlot(e.cfg.ResultsDir, runID, gen, slot, prompt, patchText, snapshot, results.SlotSummary{
		CandID:     candID,
		MetaPrompt: metaPromptID,
		ParentIDs:  parentIDs,
		Metrics:    metrics,
		Accepted:   accepted,
		Error:      errMsg,
	})
}

func (e *Engine) exemplarsFromMembers(ctx context.Context, members []archive.Member) []sampler.Exemplar {
	out := make([]sampler.Exemplar, 0, len(members))
	for _, m := range members {
		rec, err := e.store.GetCandidate(ctx, m.CandID)
		if err != nil {
			continue
		}
		out = append(out, sampler.Exemplar{
			CandID:    m.CandID,
			Code:      rec.Candidate.CodeSnapshot,
			Metrics:   m.Metrics,
			Rank:      m.Rank,
			Novelty:   m.Novelty,
			CreatedAt: m.CreatedAt.UnixNano(),
		})
	}
	return out
}

// pushFailure appends a rejected slot's outcome to the bounded
// recent-failures pool the sampler draws its "failure" exemplars from.
func (e *Engine) pushFailure(ex sampler.Exemplar) {
	const cap = 32
	e.failMu.Lock()
	defer e.failMu.Unlock()
	e.failures = append(e.failures, ex)
	if len(e.failures) > cap {
		e.failures = e.failures[len(e.failures)-cap:]
	}
}

func (e *Engine) sampleFailures(n int) []sampler.Exemplar {
	if n <= 0 {
		return nil
	}
	e.failMu.Lock()
	defer e.failMu.Unlock()
	start := len(e.failures) - n
	if start < 0 {
		start = 0
	}
	out := make([]sampler.Exemplar, len(e.failures[start:]))
	copy(out, e.failures[start:])
	return out
}

func memberIDs(members []archive.Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.CandID)
	}
	return ids
}

func rowsToEvaluations(rows []cascade.Row) []store.Evaluation {
	now := time.Now().UTC()
	out := make([]store.Evaluation, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Evaluation{
			Metric:    r.Metric,
			Value:     r.Value,
			Passed:    r.Passed,
			CostMS:    r.CostMS,
			Error:     r.Error,
			CreatedAt: now,
		})
	}
	return out
}

func metricsFromRows(rows []cascade.Row) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Metric] = r.Value
	}
	return out
}
