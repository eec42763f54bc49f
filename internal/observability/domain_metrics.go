package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartgpt_generation_requests_total",
			Help: "Total number of code generation calls by outcome.",
		},
		[]string{"backend", "outcome"},
	)
	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartgpt_generation_latency_ms",
			Help:    "Code generation latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"backend"},
	)
	executionAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chartgpt_execution_attempts_total",
			Help: "Total number of snippet execution attempts.",
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chartgpt_execution_latency_ms",
			Help:    "Snippet execution latency in milliseconds, including the final expression.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	outputFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chartgpt_output_fallback_total",
			Help: "Total number of runs resolved from captured output instead of the final expression.",
		},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartgpt_runs_total",
			Help: "Total number of ask/plot runs by mode and status.",
		},
		[]string{"mode", "status"},
	)
	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chartgpt_dataset_rows",
			Help: "Row count of the most recently loaded dataset.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationRequestsTotal,
		generationLatencyMs,
		executionAttemptsTotal,
		executionLatencyMs,
		outputFallbackTotal,
		runsTotal,
		datasetRows,
	)
}

func ObserveGeneration(backend string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	generationRequestsTotal.WithLabelValues(backend, outcome).Inc()
	generationLatencyMs.WithLabelValues(backend).Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecution(attempts int, elapsed time.Duration, fallback bool) {
	if attempts > 0 {
		executionAttemptsTotal.Add(float64(attempts))
	}
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if fallback {
		outputFallbackTotal.Inc()
	}
}

// ObserveRun counts a finished run. status is "ok" or the failing phase.
func ObserveRun(mode, status string) {
	runsTotal.WithLabelValues(mode, status).Inc()
}

func SetDatasetRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	datasetRows.Set(float64(rows))
}
