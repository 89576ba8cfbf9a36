// Package sampler assembles the single long-context prompt sent to
// the language model each generation, under a fixed token budget.
package sampler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openevolve-go/openevolve/internal/errs"
)

// Exemplar is one archive member offered to the model as inspiration:
// an elite (by Pareto rank), a novel candidate, or a recent failure.
// Each pool is rendered in the order the caller supplies it; the
// sampler never re-orders or re-selects, it only decides how many fit
// the budget.
type Exemplar struct {
	CandID    string
	Code      string
	Metrics   map[string]float64
	Rank      int
	Novelty   float64
	CreatedAt int64
}

// Input is everything needed to assemble one prompt.
type Input struct {
	MetaPromptTemplate string
	TaskDescription    string
	CurrentCode        string
	Elites             []Exemplar
	Novel              []Exemplar
	Failures           []Exemplar
	BudgetTokens       int
}

// EstimateTokens approximates a token count as bytes/4 rounded up,
// per the spec's "approximate counting is acceptable" allowance.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Assemble builds the prompt in fixed section order: meta-prompt
// header, task description, current code, then elite/novel/failure
// exemplars in rounds, one of each per round, until the next
// exemplar would exceed the budget. The current code is never
// truncated; if it alone exceeds the budget, assembly fails with
// PromptTooLarge.
func Assemble(in Input) (string, error) {
	codeTokens := EstimateTokens(in.CurrentCode)
	if codeTokens > in.BudgetTokens {
		return "", &errs.PromptTooLarge{Needed: codeTokens, Budget: in.BudgetTokens}
	}

	var b strings.Builder
	used := 0

	writeSection := func(text string) {
		b.WriteString(text)
		used += EstimateTokens(text)
	}

	writeSection(sectionHeader("META-PROMPT") + in.MetaPromptTemplate + "\n\n")
	writeSection(sectionHeader("TASK") + in.TaskDescription + "\n\n")
	writeSection(sectionHeader("CURRENT CODE") + in.CurrentCode + "\n\n")

	maxLen := len(in.Elites)
	if len(in.Novel) > maxLen {
		maxLen = len(in.Novel)
	}
	if len(in.Failures) > maxLen {
		maxLen = len(in.Failures)
	}

round:
	for i := 0; i < maxLen; i++ {
		pools := []struct {
			label string
			pool  []Exemplar
		}{
			{"ELITE", in.Elites},
			{"NOVEL", in.Novel},
			{"FAILURE", in.Failures},
		}
		for _, p := range pools {
			if i >= len(p.pool) {
				continue
			}
			text := formatExemplar(p.label, p.pool[i])
			need := EstimateTokens(text)
			if used+need > in.BudgetTokens {
				break round
			}
			writeSection(text)
		}
	}

	return b.String(), nil
}

func sectionHeader(name string) string {
	return "=== " + name + " ===\n"
}

func formatExemplar(label string, e Exemplar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s %s (rank=%d novelty=%.4f) ===\n", label, e.CandID, e.Rank, e.Novelty)
	keys := make([]string, 0, len(e.Metrics))
	for k := range e.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %.6f\n", k, e.Metrics[k])
	}
	b.WriteString(e.Code)
	b.WriteString("\n\n")
	return b.String()
}
