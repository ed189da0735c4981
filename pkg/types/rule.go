package types

import "time"

// Risk flag severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Risk flag codes emitted by rule extraction.
const (
	FlagSubjectiveResolution = "SUBJECTIVE_RESOLUTION"
	FlagUnnamedSource        = "UNNAMED_SOURCE"
	FlagAmbiguousLanguage    = "AMBIGUOUS_LANGUAGE"
)

// DefaultRuleText is used when a market detail carries no description.
const DefaultRuleText = "No rules provided"

// EvidenceSpan marks a byte range in the rule text supporting a flag.
type EvidenceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// RiskFlag is a single extracted settlement-risk signal.
type RiskFlag struct {
	Code          string         `json:"code"`
	Severity      string         `json:"severity"`
	EvidenceSpans []EvidenceSpan `json:"evidence_spans"`
}

// RuleSnapshot holds the verbatim settlement rules of a market plus the
// risk features extracted from them. RuleHash is SHA-256 hex of the UTF-8
// bytes of RuleText and is a pure function of the text.
type RuleSnapshot struct {
	MarketID            string     `json:"market_id"`
	AsOf                time.Time  `json:"as_of"`
	RuleText            string     `json:"rule_text"`
	RuleHash            string     `json:"rule_hash"`
	SettlementSource    *string    `json:"settlement_source,omitempty"`
	SettlementWindow    *string    `json:"settlement_window,omitempty"`
	DefinitionRiskScore float64    `json:"definition_risk_score"`
	RiskFlags           []RiskFlag `json:"risk_flags"`
}
