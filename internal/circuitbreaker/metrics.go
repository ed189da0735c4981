package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerOpen indicates whether the breaker is currently blocking venue traffic.
	BreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pm_endgame_breaker_open",
		Help: "Whether the failure breaker is blocking venue requests (1=open, 0=closed)",
	})

	// BreakerFailuresTotal counts venue failures reported to the breaker.
	BreakerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_breaker_failures_total",
		Help: "Total number of venue failures recorded by the breaker",
	})

	// BreakerTripsTotal counts how many times the breaker tripped open.
	BreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_breaker_trips_total",
		Help: "Total number of times the breaker tripped open",
	})

	// BreakerStateChanges counts open/closed transitions in either direction.
	BreakerStateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_breaker_state_changes_total",
		Help: "Total number of breaker state transitions (tripped or restored)",
	})
)
