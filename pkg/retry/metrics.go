package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptFailuresTotal tracks failed attempts per operation.
	AttemptFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_endgame_retry_attempt_failures_total",
			Help: "Total number of failed attempts inside retry loops",
		},
		[]string{"operation"},
	)

	// ExhaustedTotal tracks operations that failed after all attempts.
	ExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_endgame_retry_exhausted_total",
			Help: "Total number of operations that exhausted all retry attempts",
		},
		[]string{"operation"},
	)
)
