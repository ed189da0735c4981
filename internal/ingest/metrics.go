package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepDurationSeconds tracks how long each producer sweep takes.
	SweepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_endgame_ingest_sweep_duration_seconds",
		Help:    "Producer sweep duration by task",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	// SweepErrorsTotal counts sweep failures by task.
	SweepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_sweep_errors_total",
		Help: "Total number of producer sweep errors by task",
	}, []string{"task"})

	// SweepSkipsTotal counts sweeps skipped because the breaker was open.
	SweepSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_sweep_skips_total",
		Help: "Total number of sweeps skipped while the circuit breaker was open",
	}, []string{"task"})

	// MarketsEnqueuedTotal counts markets sent to the market writer.
	MarketsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_markets_enqueued_total",
		Help: "Total number of discovered markets enqueued for persistence",
	})

	// QuotesEnqueuedTotal counts quotes sent to the quote writer.
	QuotesEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_quotes_enqueued_total",
		Help: "Total number of quotes enqueued for persistence",
	})

	// RulesEnqueuedTotal counts changed rule snapshots sent to the rule writer.
	RulesEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_rules_enqueued_total",
		Help: "Total number of changed rule snapshots enqueued for persistence",
	})

	// MarketsWrittenTotal counts markets persisted by the market writer.
	MarketsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_markets_written_total",
		Help: "Total number of markets persisted",
	})

	// QuotesWrittenTotal counts quotes persisted by the quote writer.
	QuotesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_quotes_written_total",
		Help: "Total number of quotes persisted",
	})

	// RulesWrittenTotal counts rule snapshots persisted by the rule writer.
	RulesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_rules_written_total",
		Help: "Total number of rule snapshots persisted",
	})

	// WriteErrorsTotal counts failed storage writes by table.
	WriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_ingest_write_errors_total",
		Help: "Total number of failed storage writes by table",
	}, []string{"table"})
)
