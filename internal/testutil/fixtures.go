package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/mselser95/pm-endgame/internal/venue"
	"github.com/mselser95/pm-endgame/pkg/types"
)

// CreateTestMarket creates an active market closing closeIn from now.
func CreateTestMarket(id string, closeIn time.Duration) types.Market {
	slug := id + "-slug"
	url := "https://polymarket.com/event/" + slug
	closeTime := time.Now().UTC().Add(closeIn).Truncate(time.Second)

	return types.Market{
		MarketID:  id,
		Venue:     types.VenuePolymarket,
		Title:     "Will " + id + " happen?",
		Slug:      &slug,
		Status:    types.StatusActive,
		CloseTime: &closeTime,
		URL:       &url,
	}
}

// CreateTestDiscoveredMarket pairs a test market with YES and NO legs.
func CreateTestDiscoveredMarket(id string, closeIn time.Duration) venue.DiscoveredMarket {
	yesToken := id + "-yes"
	noToken := id + "-no"

	return venue.DiscoveredMarket{
		Market: CreateTestMarket(id, closeIn),
		Outcomes: []types.Outcome{
			{MarketID: id, Outcome: "YES", TokenID: &yesToken},
			{MarketID: id, Outcome: "NO", TokenID: &noToken},
		},
	}
}

// CreateTestQuote creates a quote with the given NO-side prices. The YES
// side is derived from complement pricing.
func CreateTestQuote(marketID string, noBid, noAsk float64, asOf time.Time) types.Quote {
	yesBid := 1 - noAsk
	yesAsk := 1 - noBid
	return types.NewQuoteFromBook(marketID, &yesBid, &yesAsk, asOf, types.VenuePolymarket)
}

// CreateTestRule creates a rule snapshot with the hash derived from text,
// matching what the venue client produces.
func CreateTestRule(marketID, text string, asOf time.Time) types.RuleSnapshot {
	sum := sha256.Sum256([]byte(text))

	return types.RuleSnapshot{
		MarketID:  marketID,
		AsOf:      asOf,
		RuleText:  text,
		RuleHash:  hex.EncodeToString(sum[:]),
		RiskFlags: []types.RiskFlag{},
	}
}

// CreateTestScore creates a plausible score with the given overall value.
func CreateTestScore(marketID string, overall float64, asOf time.Time) types.Score {
	return types.Score{
		MarketID:       marketID,
		AsOf:           asOf,
		TRemainingSec:  172800,
		GrossYield:     0.30,
		FeeBps:         120,
		NetYield:       0.2964,
		YieldVelocity:  0.1482,
		LiquidityScore: 0.75,
		OverallScore:   overall,
		ScoreBreakdown: json.RawMessage(`{}`),
	}
}

// CreateTestRec creates a NO-side recommendation with the given risk score.
func CreateTestRec(marketID string, riskScore float64, asOf time.Time) types.Recommendation {
	return types.Recommendation{
		MarketID:        marketID,
		AsOf:            asOf,
		RecommendedSide: types.SideNo,
		EntryPrice:      0.30,
		ExpectedPayout:  1.0,
		MaxPositionPct:  0.05,
		RiskScore:       riskScore,
		RiskFlags:       []types.RiskFlag{},
	}
}
