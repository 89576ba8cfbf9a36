// Package telemetry exports run-level counters in Prometheus text
// format: generations completed, candidates produced/accepted,
// archive evictions, and LLM/evaluator error counts.
package telemetry

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// Metrics tracks one run's execution statistics. Zero value is ready
// to use.
type Metrics struct {
	GenerationsCompleted int64
	CandidatesTotal       int64
	CandidatesAccepted    int64
	CandidatesRejected    int64
	ArchiveEvictions      int64
	LLMErrors             int64
	EvaluatorErrors       int64
}

// PrometheusExporter exports Metrics in Prometheus text format.
type PrometheusExporter struct {
	metrics *Metrics
}

// NewPrometheusExporter creates an exporter over m.
func NewPrometheusExporter(m *Metrics) *PrometheusExporter {
	return &PrometheusExporter{metrics: m}
}

// Export returns the current metrics rendered in Prometheus text
// exposition format.
func (e *PrometheusExporter) Export() string {
	var b strings.Builder

	generations := atomic.LoadInt64(&e.metrics.GenerationsCompleted)
	candidatesTotal := atomic.LoadInt64(&e.metrics.CandidatesTotal)
	accepted := atomic.LoadInt64(&e.metrics.CandidatesAccepted)
	rejected := atomic.LoadInt64(&e.metrics.CandidatesRejected)
	evictions := atomic.LoadInt64(&e.metrics.ArchiveEvictions)
	llmErrors := atomic.LoadInt64(&e.metrics.LLMErrors)
	evalErrors := atomic.LoadInt64(&e.metrics.EvaluatorErrors)

	fmt.Fprintf(&b, "openevolve_generations_completed %d\n", generations)
	fmt.Fprintf(&b, "openevolve_candidates_total{outcome=\"accepted\"} %d\n", accepted)
	fmt.Fprintf(&b, "openevolve_candidates_total{outcome=\"rejected\"} %d\n", rejected)
	fmt.Fprintf(&b, "openevolve_candidates_total %d\n", candidatesTotal)
	fmt.Fprintf(&b, "openevolve_archive_evictions_total %d\n", evictions)
	fmt.Fprintf(&b, "openevolve_llm_errors_total %d\n", llmErrors)
	fmt.Fprintf(&b, "openevolve_evaluator_errors_total %d\n", evalErrors)

	var acceptRate float64
	if candidatesTotal > 0 {
		acceptRate = float64(accepted) / float64(candidatesTotal)
	}
	fmt.Fprintf(&b, "openevolve_acceptance_rate %s\n", formatFloat(acceptRate))

	return b.String()
}

// Handler returns an HTTP handler serving Export() at /metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, e.Export())
	})
}

func formatFloat(f float64) string {
	if f == 0.0 {
		return "0"
	}
	s := fmt.Sprintf("%.4f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
