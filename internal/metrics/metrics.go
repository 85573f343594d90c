package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VotesTotal counts reconciled votes by outcome
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentos_votes_total",
		Help: "Reconciled votes by outcome (upvoted, downvoted, removed, changed, failed)",
	}, []string{"action"})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentos_sweep_runs_total",
		Help: "Evolution sweeps started",
	})

	SweepPromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentos_sweep_promotions_total",
		Help: "Agent versions promoted from training to active",
	})

	SweepDeprecationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentos_sweep_deprecations_total",
		Help: "Active agent versions deprecated by a sibling's promotion",
	})

	SweepRowErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentos_sweep_row_errors_total",
		Help: "Eligible agent versions that failed to promote",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentos_sweep_duration_seconds",
		Help:    "Wall time of an evolution sweep",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	AuditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentos_audit_dropped_total",
		Help: "Audit entries dropped because the queue was full or the write failed",
	})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
