package venue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts venue API requests by operation.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_venue_requests_total",
		Help: "Total number of venue API requests",
	}, []string{"operation"})

	// RequestFailuresTotal counts venue API requests that failed after retries.
	RequestFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_endgame_venue_request_failures_total",
		Help: "Total number of venue API requests that failed after all retries",
	}, []string{"operation"})

	// RequestDurationSeconds tracks venue request latency including retries.
	RequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_endgame_venue_request_duration_seconds",
		Help:    "Venue API request duration including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// MarketsDiscoveredTotal counts markets returned by discovery pages.
	MarketsDiscoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_venue_markets_discovered_total",
		Help: "Total number of markets returned by discovery pages",
	})

	// QuotesFetchedTotal counts quotes successfully derived from books.
	QuotesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_venue_quotes_fetched_total",
		Help: "Total number of quotes derived from fetched books",
	})

	// QuoteFetchSkipsTotal counts markets skipped in a quote batch because
	// their book request failed.
	QuoteFetchSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_endgame_venue_quote_fetch_skips_total",
		Help: "Total number of markets skipped because their book request failed",
	})
)
