package cache

import (
	"testing"
)

// TestMetrics_Registration tests all metrics are initialized
func TestMetrics_Registration(t *testing.T) {
	if CacheHitsTotal == nil {
		t.Error("CacheHitsTotal not registered")
	}

	if CacheMissesTotal == nil {
		t.Error("CacheMissesTotal not registered")
	}

	if CacheSetsTotal == nil {
		t.Error("CacheSetsTotal not registered")
	}

	if CacheDeletesTotal == nil {
		t.Error("CacheDeletesTotal not registered")
	}
}

// TestMetrics_CounterIncrement tests counters accept the kind label
func TestMetrics_CounterIncrement(t *testing.T) {
	CacheHitsTotal.WithLabelValues("market-detail").Inc()
	CacheMissesTotal.WithLabelValues("market-detail").Inc()
	CacheSetsTotal.WithLabelValues("market-detail").Inc()
	CacheDeletesTotal.WithLabelValues("market-detail").Inc()
}
