package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Model calls dominate request latency, so buckets reach a minute.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "querydesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "querydesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   latencyBuckets,
		},
		[]string{"method", "route", "status"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "querydesk",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each question pipeline stage.",
			Buckets:   latencyBuckets,
		},
		[]string{"stage", "outcome"},
	)
	interactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "querydesk",
			Name:      "interactions_total",
			Help:      "Interaction records written, by status.",
		},
		[]string{"status"},
	)
	summariesDegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "querydesk",
		Name:      "summaries_degraded_total",
		Help:      "Answers produced by the summarization fallback.",
	})
	archiveExportedRowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "querydesk",
		Name:      "archive_exported_rows_total",
		Help:      "Interaction rows written to archive files.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		pipelineStageDurationSeconds,
		interactionsTotal,
		summariesDegradedTotal,
		archiveExportedRowsTotal,
	)
}

func ObservePipelineStage(stage string, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	pipelineStageDurationSeconds.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func IncrementInteractions(status string) {
	interactionsTotal.WithLabelValues(status).Inc()
}

func IncrementDegradedSummaries() {
	summariesDegradedTotal.Inc()
}

func AddArchivedRows(rows int) {
	if rows > 0 {
		archiveExportedRowsTotal.Add(float64(rows))
	}
}
