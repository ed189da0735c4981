// Package venue reads prediction markets from an external venue: paged
// market discovery, top-of-book quotes, and settlement rule text with
// deterministic risk extraction. One implementation targets the Polymarket
// Gamma API.
package venue

import (
	"context"

	"github.com/mselser95/pm-endgame/pkg/types"
)

// DiscoveredMarket pairs a market with the outcome tokens carried by the
// same discovery document.
type DiscoveredMarket struct {
	Market   types.Market
	Outcomes []types.Outcome
}

// Client is the capability set the ingest pipeline needs from a venue.
// Implementations must be safe for concurrent use.
type Client interface {
	// DiscoverMarkets fetches one page of active markets. Callers page by
	// advancing offset until an empty page comes back.
	DiscoverMarkets(ctx context.Context, limit, offset int) ([]DiscoveredMarket, error)

	// GetQuotes polls top-of-book quotes for a batch of markets. All quotes
	// in the returned batch share one as_of timestamp.
	GetQuotes(ctx context.Context, marketIDs []string) ([]types.Quote, error)

	// GetRules fetches rule text for one market and extracts risk features.
	GetRules(ctx context.Context, marketID string) (*types.RuleSnapshot, error)

	// GetOutcomes fetches the outcome tokens of one market.
	GetOutcomes(ctx context.Context, marketID string) ([]types.Outcome, error)
}
