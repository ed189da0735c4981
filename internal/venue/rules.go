package venue

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"github.com/mselser95/pm-endgame/pkg/types"
)

// computeRuleHash returns the SHA-256 hex digest of the rule text bytes,
// used for change detection.
func computeRuleHash(text string) string {
	sum := sha256.Sum256([]byte(text))

	return hex.EncodeToString(sum[:])
}

// extractRiskFlags scans rule text for settlement-risk markers. Matching is
// case-insensitive substring search against a fixed lexicon; each code
// fires at most once per snapshot.
func extractRiskFlags(ruleText string) []types.RiskFlag {
	var flags []types.RiskFlag
	lower := strings.ToLower(ruleText)

	if strings.Contains(lower, "subjective") || strings.Contains(lower, "discretion") {
		flags = append(flags, types.RiskFlag{
			Code:          types.FlagSubjectiveResolution,
			Severity:      types.SeverityHigh,
			EvidenceSpans: []types.EvidenceSpan{},
		})
	}

	if strings.Contains(lower, "unnamed") || strings.Contains(lower, "anonymous") {
		flags = append(flags, types.RiskFlag{
			Code:          types.FlagUnnamedSource,
			Severity:      types.SeverityHigh,
			EvidenceSpans: []types.EvidenceSpan{},
		})
	}

	if strings.Contains(lower, "may") || strings.Contains(lower, "might") || strings.Contains(lower, "could") {
		flags = append(flags, types.RiskFlag{
			Code:          types.FlagAmbiguousLanguage,
			Severity:      types.SeverityMedium,
			EvidenceSpans: []types.EvidenceSpan{},
		})
	}

	return flags
}

// calculateRiskScore folds flag severities into a definition risk score
// capped at 1.0.
func calculateRiskScore(flags []types.RiskFlag) float64 {
	score := 0.0
	for _, f := range flags {
		switch f.Severity {
		case types.SeverityHigh:
			score += 0.3
		case types.SeverityMedium:
			score += 0.15
		case types.SeverityLow:
			score += 0.05
		}
	}

	return math.Min(score, 1.0)
}

// buildRuleSnapshot assembles a snapshot from verbatim rule text.
func buildRuleSnapshot(marketID, ruleText string, settlementSource *string, asOf time.Time) types.RuleSnapshot {
	flags := extractRiskFlags(ruleText)

	return types.RuleSnapshot{
		MarketID:            marketID,
		AsOf:                asOf,
		RuleText:            ruleText,
		RuleHash:            computeRuleHash(ruleText),
		SettlementSource:    settlementSource,
		SettlementWindow:    nil,
		DefinitionRiskScore: calculateRiskScore(flags),
		RiskFlags:           flags,
	}
}
