// Package metrics registers OrderFlow's Prometheus collectors and
// serves them over HTTP. Collectors are package-level because the
// process has exactly one registry; tests exercise them through the
// Record* helpers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessedTotal counts documents that completed the
	// extraction pipeline, by terminal status.
	DocumentsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_documents_processed_total",
			Help: "Total number of documents processed, by terminal status",
		},
		[]string{"status"},
	)

	// ExtractionsTotal counts extraction runs by method.
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_extractions_total",
			Help: "Total number of extraction runs, by method",
		},
		[]string{"method"},
	)

	// ExtractionDuration observes extraction run duration by method.
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderflow_extraction_duration_seconds",
			Help:    "Extraction run duration in seconds, by method",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	// AICallsTotal counts provider calls by call type and provider.
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_ai_calls_total",
			Help: "Total number of AI provider calls, by type and provider",
		},
		[]string{"call_type", "provider"},
	)

	// AICallDuration observes provider call latency.
	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderflow_ai_call_duration_seconds",
			Help:    "AI provider call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"call_type", "provider"},
	)

	// AICostMicrosTotal accumulates provider cost in micro-units.
	AICostMicrosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_ai_cost_micros_total",
			Help: "Cumulative AI provider cost in currency micro-units",
		},
		[]string{"provider", "model"},
	)

	// AICacheHitsTotal counts ledger dedup hits that avoided a call.
	AICacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderflow_ai_cache_hits_total",
			Help: "Total AI calls answered from the cost-ledger cache",
		},
	)

	// BudgetBlockedTotal counts calls refused by the budget gate.
	BudgetBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orderflow_budget_blocked_total",
			Help: "Total AI calls blocked by the daily budget gate",
		},
	)

	// MatchesTotal counts match attempts by outcome status.
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_matches_total",
			Help: "Total line match attempts, by outcome status",
		},
		[]string{"status"},
	)

	// ExportsTotal counts ERP exports by outcome status.
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_exports_total",
			Help: "Total ERP export attempts, by outcome status",
		},
		[]string{"status"},
	)

	// TasksProcessedTotal counts worker task executions by type and
	// outcome.
	TasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_tasks_processed_total",
			Help: "Total worker tasks processed, by type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	// TaskDuration observes worker task duration by type.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderflow_task_duration_seconds",
			Help:    "Worker task duration in seconds, by task type",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300, 600},
		},
		[]string{"task_type"},
	)

	// ValidationIssuesTotal counts validation issues emitted by type
	// and severity.
	ValidationIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderflow_validation_issues_total",
			Help: "Total validation issues emitted, by type and severity",
		},
		[]string{"issue_type", "severity"},
	)
)

// RecordDocumentProcessed records a document reaching a terminal
// status (extracted, failed).
func RecordDocumentProcessed(status string) {
	DocumentsProcessedTotal.WithLabelValues(status).Inc()
}

// RecordExtraction records one extraction run with its method and
// duration.
func RecordExtraction(method string, duration time.Duration) {
	ExtractionsTotal.WithLabelValues(method).Inc()
	ExtractionDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAICall records one provider call with latency and cost.
func RecordAICall(callType, provider, model string, duration time.Duration, costMicros int64) {
	AICallsTotal.WithLabelValues(callType, provider).Inc()
	AICallDuration.WithLabelValues(callType, provider).Observe(duration.Seconds())
	AICostMicrosTotal.WithLabelValues(provider, model).Add(float64(costMicros))
}

// RecordAICacheHit records a ledger dedup hit.
func RecordAICacheHit() {
	AICacheHitsTotal.Inc()
}

// RecordBudgetBlocked records a budget-gate refusal.
func RecordBudgetBlocked() {
	BudgetBlockedTotal.Inc()
}

// RecordMatch records one line match attempt with its outcome status.
func RecordMatch(status string) {
	MatchesTotal.WithLabelValues(status).Inc()
}

// RecordExport records one ERP export attempt with its outcome status.
func RecordExport(status string) {
	ExportsTotal.WithLabelValues(status).Inc()
}

// RecordTask records one worker task execution.
func RecordTask(taskType, outcome string, duration time.Duration) {
	TasksProcessedTotal.WithLabelValues(taskType, outcome).Inc()
	TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordValidationIssue records one emitted validation issue.
func RecordValidationIssue(issueType, severity string) {
	ValidationIssuesTotal.WithLabelValues(issueType, severity).Inc()
}
