package types

import "time"

// Quote is a top-of-book snapshot for a market. YES prices come straight
// from the venue book; NO prices are the complement of the opposite YES side
// (no_bid = 1 - yes_ask, no_ask = 1 - yes_bid). All prices are in [0,1].
// Spreads and mids are present only when both endpoints of that side exist.
type Quote struct {
	MarketID    string     `json:"market_id"`
	AsOf        time.Time  `json:"as_of"`
	YesBid      *float64   `json:"yes_bid,omitempty"`
	YesAsk      *float64   `json:"yes_ask,omitempty"`
	NoBid       *float64   `json:"no_bid,omitempty"`
	NoAsk       *float64   `json:"no_ask,omitempty"`
	SpreadYes   *float64   `json:"spread_yes,omitempty"`
	SpreadNo    *float64   `json:"spread_no,omitempty"`
	MidYes      *float64   `json:"mid_yes,omitempty"`
	MidNo       *float64   `json:"mid_no,omitempty"`
	QuoteSource string     `json:"quote_source"`
}

// NewQuoteFromBook derives a full quote from top-of-book YES prices.
// Either side may be nil when that side of the book is empty.
func NewQuoteFromBook(marketID string, yesBid, yesAsk *float64, asOf time.Time, source string) Quote {
	q := Quote{
		MarketID:    marketID,
		AsOf:        asOf,
		YesBid:      yesBid,
		YesAsk:      yesAsk,
		QuoteSource: source,
	}

	if yesAsk != nil {
		noBid := 1 - *yesAsk
		q.NoBid = &noBid
	}
	if yesBid != nil {
		noAsk := 1 - *yesBid
		q.NoAsk = &noAsk
	}

	if yesBid != nil && yesAsk != nil {
		spreadYes := *yesAsk - *yesBid
		midYes := (*yesBid + *yesAsk) / 2
		q.SpreadYes = &spreadYes
		q.MidYes = &midYes
	}
	if q.NoBid != nil && q.NoAsk != nil {
		spreadNo := *q.NoAsk - *q.NoBid
		midNo := (*q.NoBid + *q.NoAsk) / 2
		q.SpreadNo = &spreadNo
		q.MidNo = &midNo
	}

	return q
}

// BucketTo5m floors t to the preceding 5-minute boundary in UTC, zeroing
// seconds and sub-second components. It is the primary key component for
// quote history rows and is idempotent.
func BucketTo5m(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()-t.Minute()%5, 0, 0, time.UTC)
}
