package types

import "time"

// VenuePolymarket is the venue tag for markets discovered on Polymarket.
const VenuePolymarket = "polymarket"

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

// Market lifecycle states.
const (
	StatusActive   MarketStatus = "active"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
	StatusHalted   MarketStatus = "halted"
)

// Market represents a prediction market tracked by the system.
// MarketID is the venue's stable identifier and is unique per venue.
// CloseTime is required for a market to be eligible for scoring.
type Market struct {
	MarketID     string       `json:"market_id"`
	Venue        string       `json:"venue"`
	Title        string       `json:"title"`
	Slug         *string      `json:"slug,omitempty"`
	Category     *string      `json:"category,omitempty"`
	Status       MarketStatus `json:"status"`
	OpenTime     *time.Time   `json:"open_time,omitempty"`
	CloseTime    *time.Time   `json:"close_time,omitempty"`
	ResolvedTime *time.Time   `json:"resolved_time,omitempty"`
	URL          *string      `json:"url,omitempty"`
}

// IsActive returns true if the market is in the active lifecycle state.
func (m *Market) IsActive() bool {
	return m.Status == StatusActive
}

// Outcome represents a single tradable outcome token of a market.
type Outcome struct {
	MarketID string  `json:"market_id"`
	Outcome  string  `json:"outcome"`
	TokenID  *string `json:"token_id,omitempty"`
}
