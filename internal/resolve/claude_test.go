package resolve

import (
	"testing"
)

func TestParseSignal_WellFormed(t *testing.T) {
	sig := parseSignal("claude:test", `PREFERRED: 1
CONFIDENCE: 0.85
RELIABILITY: 0.7
RECENCY: 0.6
AGREEMENT: 0.4
REASONING: The tier-one source agrees with the filing.`)

	if sig.PreferredIndex != 1 {
		t.Errorf("PreferredIndex = %d", sig.PreferredIndex)
	}
	if sig.Confidence != 0.85 || sig.ReliabilityWeight != 0.7 || sig.RecencyScore != 0.6 || sig.AgreementScore != 0.4 {
		t.Errorf("scores not parsed: %+v", sig)
	}
	if sig.Reasoning != "The tier-one source agrees with the filing." {
		t.Errorf("Reasoning = %q", sig.Reasoning)
	}
}

func TestParseSignal_GarbageFallsBackToDefaults(t *testing.T) {
	sig := parseSignal("claude:test", "I think the first one is probably right?")

	if sig.PreferredIndex != 0 {
		t.Errorf("default PreferredIndex should be 0, got %d", sig.PreferredIndex)
	}
	if sig.Confidence != 0.5 || sig.ReliabilityWeight != 0.5 {
		t.Errorf("defaults not applied: %+v", sig)
	}
}

func TestParseSignal_PartialAndMessy(t *testing.T) {
	sig := parseSignal("claude:test", `preferred: 2
CONFIDENCE: not-a-number
AGREEMENT: 1.7`)

	if sig.PreferredIndex != 2 {
		t.Errorf("prefix matching should be case-insensitive, got %d", sig.PreferredIndex)
	}
	// Unparsable value keeps the default.
	if sig.Confidence != 0.5 {
		t.Errorf("Confidence = %v", sig.Confidence)
	}
	// Out-of-range values clamp into [0,1].
	if sig.AgreementScore != 1.0 {
		t.Errorf("AgreementScore = %v", sig.AgreementScore)
	}
}

func TestParseSignal_NegativeIndexIgnored(t *testing.T) {
	sig := parseSignal("claude:test", "PREFERRED: -3")
	if sig.PreferredIndex != 0 {
		t.Errorf("negative index must keep the default, got %d", sig.PreferredIndex)
	}
}
