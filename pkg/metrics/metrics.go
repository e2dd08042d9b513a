// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsCreated tracks conversation records created.
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_created_total",
			Help: "Total conversation records created",
		},
	)

	// ConversationUpserts tracks transcript upserts by outcome.
	ConversationUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_upserts_total",
			Help: "Total transcript save requests",
		},
		[]string{"outcome"},
	)

	// FinalizeRequests tracks finalize decisions by execution mode and outcome.
	FinalizeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalize_requests_total",
			Help: "Finalize requests by mode (sync, async, fallback_sync, skipped) and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// AnalysisTierAttempts tracks analysis engine attempts per tier.
	AnalysisTierAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_tier_attempts_total",
			Help: "Analysis engine attempts by tier and status",
		},
		[]string{"tier", "status"},
	)

	// AnalysisTierDuration tracks per-tier analysis latency.
	AnalysisTierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_tier_duration_seconds",
			Help:    "Analysis engine call duration by tier",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"tier"},
	)

	// FinalizeJobsEnqueued tracks background finalize jobs enqueued.
	FinalizeJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finalize_jobs_enqueued_total",
			Help: "Finalize jobs published to the background queue",
		},
	)

	// FinalizeJobsProcessed tracks background finalize jobs by result.
	FinalizeJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finalize_jobs_processed_total",
			Help: "Finalize jobs processed by the worker, by result (ok, retry, dropped)",
		},
		[]string{"result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTierAttempt records one analysis engine attempt.
func RecordTierAttempt(tier, status string, duration float64) {
	AnalysisTierAttempts.WithLabelValues(tier, status).Inc()
	AnalysisTierDuration.WithLabelValues(tier).Observe(duration)
}
