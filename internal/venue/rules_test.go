package venue

import (
	"testing"
	"time"

	"github.com/mselser95/pm-endgame/pkg/types"
)

func TestComputeRuleHash(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "empty-text",
			text:     "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "known-vector",
			text:     "hello",
			expected: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			name:     "default-rule-text",
			text:     "No rules provided",
			expected: "e00ad11279e9bf34560453d049e90b9a485b78b73e911e46acee4a4b6ab45ade",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeRuleHash(tt.text)
			if got != tt.expected {
				t.Errorf("expected hash %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestComputeRuleHash_Deterministic(t *testing.T) {
	text := "The market resolves YES if the event occurs before the deadline."

	first := computeRuleHash(text)
	second := computeRuleHash(text)

	if first != second {
		t.Errorf("expected stable hash, got %s then %s", first, second)
	}

	if computeRuleHash(text+" ") == first {
		t.Error("expected different text to produce a different hash")
	}
}

func TestExtractRiskFlags(t *testing.T) {
	tests := []struct {
		name          string
		ruleText      string
		expectedCodes []string
	}{
		{
			name:          "clean-text",
			ruleText:      "Resolves YES if the S&P 500 closes above 6000 on the date.",
			expectedCodes: nil,
		},
		{
			name:          "subjective",
			ruleText:      "The outcome is subjective and decided by moderators.",
			expectedCodes: []string{types.FlagSubjectiveResolution},
		},
		{
			name:          "discretion-uppercase",
			ruleText:      "Resolved at the sole DISCRETION of the committee.",
			expectedCodes: []string{types.FlagSubjectiveResolution},
		},
		{
			name:          "subjective-and-discretion-fires-once",
			ruleText:      "A subjective call made at the discretion of the panel.",
			expectedCodes: []string{types.FlagSubjectiveResolution},
		},
		{
			name:          "unnamed-source",
			ruleText:      "Confirmed by an unnamed official.",
			expectedCodes: []string{types.FlagUnnamedSource},
		},
		{
			name:          "anonymous-source",
			ruleText:      "Based on reports from anonymous insiders.",
			expectedCodes: []string{types.FlagUnnamedSource},
		},
		{
			name:          "ambiguous-may",
			ruleText:      "The deadline may be extended.",
			expectedCodes: []string{types.FlagAmbiguousLanguage},
		},
		{
			name:          "ambiguous-could",
			ruleText:      "Sources could include official statements.",
			expectedCodes: []string{types.FlagAmbiguousLanguage},
		},
		{
			name:          "maybe-matches-may-substring",
			ruleText:      "Maybe the event happens.",
			expectedCodes: []string{types.FlagAmbiguousLanguage},
		},
		{
			name:     "all-three",
			ruleText: "At the discretion of an anonymous panel that may change the criteria.",
			expectedCodes: []string{
				types.FlagSubjectiveResolution,
				types.FlagUnnamedSource,
				types.FlagAmbiguousLanguage,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := extractRiskFlags(tt.ruleText)

			if len(flags) != len(tt.expectedCodes) {
				t.Fatalf("expected %d flags, got %d", len(tt.expectedCodes), len(flags))
			}

			for i, code := range tt.expectedCodes {
				if flags[i].Code != code {
					t.Errorf("flag %d: expected code %s, got %s", i, code, flags[i].Code)
				}
			}

			// Each code fires at most once
			seen := make(map[string]bool)
			for _, f := range flags {
				if seen[f.Code] {
					t.Errorf("code %s emitted more than once", f.Code)
				}
				seen[f.Code] = true
			}

			score := calculateRiskScore(flags)
			if score < 0 || score > 1 {
				t.Errorf("expected risk score in [0,1], got %f", score)
			}
		})
	}
}

func TestCalculateRiskScore(t *testing.T) {
	tests := []struct {
		name     string
		flags    []types.RiskFlag
		expected float64
	}{
		{
			name:     "no-flags",
			flags:    nil,
			expected: 0.0,
		},
		{
			name:     "single-high",
			flags:    []types.RiskFlag{{Severity: types.SeverityHigh}},
			expected: 0.3,
		},
		{
			name:     "single-medium",
			flags:    []types.RiskFlag{{Severity: types.SeverityMedium}},
			expected: 0.15,
		},
		{
			name:     "single-low",
			flags:    []types.RiskFlag{{Severity: types.SeverityLow}},
			expected: 0.05,
		},
		{
			name: "two-high-one-medium",
			flags: []types.RiskFlag{
				{Severity: types.SeverityHigh},
				{Severity: types.SeverityHigh},
				{Severity: types.SeverityMedium},
			},
			expected: 0.75,
		},
		{
			name: "capped-at-one",
			flags: []types.RiskFlag{
				{Severity: types.SeverityHigh},
				{Severity: types.SeverityHigh},
				{Severity: types.SeverityHigh},
				{Severity: types.SeverityHigh},
			},
			expected: 1.0,
		},
		{
			name:     "unknown-severity-ignored",
			flags:    []types.RiskFlag{{Severity: "critical"}},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateRiskScore(tt.flags)
			if got != tt.expected {
				t.Errorf("expected score %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestBuildRuleSnapshot(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	source := "Associated Press"
	text := "Resolution is at the sole discretion of the committee."

	snapshot := buildRuleSnapshot("0xabc", text, &source, asOf)

	if snapshot.MarketID != "0xabc" {
		t.Errorf("expected market id 0xabc, got %s", snapshot.MarketID)
	}

	if !snapshot.AsOf.Equal(asOf) {
		t.Errorf("expected as_of %v, got %v", asOf, snapshot.AsOf)
	}

	if snapshot.RuleText != text {
		t.Errorf("expected verbatim rule text, got %q", snapshot.RuleText)
	}

	if snapshot.RuleHash != "72e4fba284cd01e1f3ccdc92ce2beeab42a681ce07510889bef2dcc4d3b05ab6" {
		t.Errorf("unexpected rule hash %s", snapshot.RuleHash)
	}

	if snapshot.SettlementSource == nil || *snapshot.SettlementSource != source {
		t.Errorf("expected settlement source %q, got %v", source, snapshot.SettlementSource)
	}

	if snapshot.SettlementWindow != nil {
		t.Error("expected nil settlement window")
	}

	if len(snapshot.RiskFlags) != 1 || snapshot.RiskFlags[0].Code != types.FlagSubjectiveResolution {
		t.Fatalf("expected single SUBJECTIVE_RESOLUTION flag, got %+v", snapshot.RiskFlags)
	}

	if snapshot.DefinitionRiskScore != 0.3 {
		t.Errorf("expected definition risk score 0.3, got %f", snapshot.DefinitionRiskScore)
	}
}

func TestBuildRuleSnapshot_NoRiskText(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	snapshot := buildRuleSnapshot("0xdef", "Resolves YES on official confirmation.", nil, asOf)

	if len(snapshot.RiskFlags) != 0 {
		t.Errorf("expected no flags, got %+v", snapshot.RiskFlags)
	}

	if snapshot.DefinitionRiskScore != 0 {
		t.Errorf("expected zero risk score, got %f", snapshot.DefinitionRiskScore)
	}

	if snapshot.SettlementSource != nil {
		t.Error("expected nil settlement source")
	}
}
