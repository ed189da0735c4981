package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsWrittenTotal tracks rows written to Postgres per table.
	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_endgame_storage_rows_written_total",
			Help: "Total number of rows written to Postgres",
		},
		[]string{"table"},
	)

	// WriteErrorsTotal tracks failed writes per table.
	WriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_endgame_storage_write_errors_total",
			Help: "Total number of failed Postgres writes",
		},
		[]string{"table"},
	)

	// ReadErrorsTotal tracks failed reads per table.
	ReadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_endgame_storage_read_errors_total",
			Help: "Total number of failed Postgres reads",
		},
		[]string{"table"},
	)

	// QueryDurationSeconds tracks query latency per operation.
	QueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm_endgame_storage_query_duration_seconds",
			Help:    "Duration of Postgres queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
