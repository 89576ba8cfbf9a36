package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExport_RendersCounters(t *testing.T) {
	m := &Metrics{
		GenerationsCompleted: 3,
		CandidatesTotal:      10,
		CandidatesAccepted:   4,
		CandidatesRejected:   6,
		ArchiveEvictions:     2,
		LLMErrors:            1,
		EvaluatorErrors:      0,
	}
	e := NewPrometheusExporter(m)
	out := e.Export()

	require.Contains(t, out, "openevolve_generations_completed 3")
	require.Contains(t, out, `openevolve_candidates_total{outcome="accepted"} 4`)
	require.Contains(t, out, `openevolve_candidates_total{outcome="rejected"} 6`)
	require.Contains(t, out, "openevolve_candidates_total 10")
	require.Contains(t, out, "openevolve_archive_evictions_total 2")
	require.Contains(t, out, "openevolve_acceptance_rate 0.4")
}

func TestExport_ZeroCandidatesYieldsZeroRate(t *testing.T) {
	e := NewPrometheusExporter(&Metrics{})
	require.Contains(t, e.Export(), "openevolve_acceptance_rate 0\n")
}

func TestHandler_ServesExportOverHTTP(t *testing.T) {
	m := &Metrics{CandidatesTotal: 1, CandidatesAccepted: 1}
	e := NewPrometheusExporter(m)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "openevolve_candidates_total 1")
}
