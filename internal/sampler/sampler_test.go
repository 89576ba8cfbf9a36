package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openevolve-go/openevolve/internal/errs"
)

func TestAssemble_FixedSectionOrder(t *testing.T) {
	in := Input{
		MetaPromptTemplate: "Improve the function.",
		TaskDescription:    "Score a list of values.",
		CurrentCode:        "def score(values): return 0",
		BudgetTokens:       1000,
	}
	out, err := Assemble(in)
	require.NoError(t, err)

	metaIdx := indexOf(out, "META-PROMPT")
	taskIdx := indexOf(out, "TASK")
	codeIdx := indexOf(out, "CURRENT CODE")
	require.True(t, metaIdx < taskIdx)
	require.True(t, taskIdx < codeIdx)
}

func TestAssemble_CurrentCodeNeverTruncated(t *testing.T) {
	in := Input{
		CurrentCode:  "x",
		BudgetTokens: 1,
	}
	out, err := Assemble(in)
	require.NoError(t, err)
	require.Contains(t, out, "x")
}

func TestAssemble_PromptTooLargeWhenCodeAloneExceedsBudget(t *testing.T) {
	in := Input{
		CurrentCode:  "this code is far too long to fit",
		BudgetTokens: 1,
	}
	_, err := Assemble(in)
	require.Error(t, err)
	var tooLarge *errs.PromptTooLarge
	require.ErrorAs(t, err, &tooLarge)
}

func TestAssemble_ExemplarsStopOnceBudgetExceeded(t *testing.T) {
	in := Input{
		CurrentCode:  "code",
		BudgetTokens: EstimateTokens("code") + 1,
		Elites: []Exemplar{
			{CandID: "elite-1", Code: "elite body one that is reasonably long"},
			{CandID: "elite-2", Code: "elite body two"},
		},
	}
	out, err := Assemble(in)
	require.NoError(t, err)
	require.NotContains(t, out, "elite-1")
	require.NotContains(t, out, "elite-2")
}

func TestAssemble_RoundRobinsAcrossPools(t *testing.T) {
	in := Input{
		CurrentCode:  "c",
		BudgetTokens: 10000,
		Elites:       []Exemplar{{CandID: "e1", Code: "ecode"}},
		Novel:        []Exemplar{{CandID: "n1", Code: "ncode"}},
		Failures:     []Exemplar{{CandID: "f1", Code: "fcode"}},
	}
	out, err := Assemble(in)
	require.NoError(t, err)
	require.Contains(t, out, "e1")
	require.Contains(t, out, "n1")
	require.Contains(t, out, "f1")

	eliteIdx := indexOf(out, "e1")
	novelIdx := indexOf(out, "n1")
	failIdx := indexOf(out, "f1")
	require.True(t, eliteIdx < novelIdx)
	require.True(t, novelIdx < failIdx)
}

func TestAssemble_Deterministic(t *testing.T) {
	in := Input{
		CurrentCode:  "c",
		BudgetTokens: 10000,
		Elites:       []Exemplar{{CandID: "e1", Code: "ecode", Metrics: map[string]float64{"b": 1, "a": 2}}},
	}
	out1, err := Assemble(in)
	require.NoError(t, err)
	out2, err := Assemble(in)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
