package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDurationSeconds tracks how long each scoring cycle takes.
	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_endgame_scoring_cycle_duration_seconds",
		Help:    "Scoring cycle duration",
		Buckets: prometheus.DefBuckets,
	})

	// CycleErrorsTotal counts cycles aborted by a storage error.
	CycleErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_scoring_cycle_errors_total",
		Help: "Total number of scoring cycles aborted by a storage error",
	})

	// ScoresComputedTotal counts scores persisted across all cycles.
	ScoresComputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_scoring_scores_computed_total",
		Help: "Total number of market scores computed and persisted",
	})

	// RecsGeneratedTotal counts recommendations persisted across all cycles.
	RecsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_scoring_recs_generated_total",
		Help: "Total number of recommendations generated and persisted",
	})
)
