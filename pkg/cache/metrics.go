package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_cache_hits_total",
		Help: "Total number of cache hits by document kind",
	}, []string{"kind"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_cache_misses_total",
		Help: "Total number of cache misses by document kind",
	}, []string{"kind"})

	CacheSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_cache_sets_total",
		Help: "Total number of cache sets by document kind",
	}, []string{"kind"})

	CacheDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_cache_deletes_total",
		Help: "Total number of cache deletes by document kind",
	}, []string{"kind"})
)
