package resolve

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func candidate(value any, source string, tier int, ts time.Time) CandidateValue {
	return CandidateValue{Value: value, Source: source, Tier: tier, Timestamp: ts}
}

// panicEvaluator fails the test if the panel is ever consulted.
type panicEvaluator struct{ t *testing.T }

func (e *panicEvaluator) ID() string { return "panic" }
func (e *panicEvaluator) Evaluate(context.Context, string, model.FieldType, []CandidateValue, map[string]float64) (Signal, error) {
	e.t.Fatal("evaluator panel must not be invoked")
	return Signal{}, nil
}

func TestResolveConflict_SingleCandidate(t *testing.T) {
	r := NewResolver(NewCouncil(&panicEvaluator{t}, 4), NewRevolver(DefaultWeights()))

	dec := r.ResolveConflict(context.Background(), "ceo", []CandidateValue{
		candidate("Satya Nadella", "pdl", 1, time.Now()),
	})

	if dec.Winner != "Satya Nadella" || dec.ConfidenceScore != 1.0 {
		t.Errorf("single candidate must win with 1.0, got %v / %v", dec.Winner, dec.ConfidenceScore)
	}
	if len(dec.Alternatives) != 0 {
		t.Errorf("no alternatives expected, got %v", dec.Alternatives)
	}
}

func TestResolveConflict_UnanimousSkipsPanel(t *testing.T) {
	r := NewResolver(NewCouncil(&panicEvaluator{t}, 4), NewRevolver(DefaultWeights()))

	dec := r.ResolveConflict(context.Background(), "ceo", []CandidateValue{
		candidate("Satya Nadella", "apollo", 2, time.Now()),
		candidate("satya nadella ", "pdl", 1, time.Now()),
	})

	if dec.ConfidenceScore != 1.0 {
		t.Errorf("identical values must score 1.0, got %v", dec.ConfidenceScore)
	}
	// The most reliable source's rendering wins.
	if dec.WinnerSource != "pdl" {
		t.Errorf("expected pdl as winner source, got %s", dec.WinnerSource)
	}
}

func TestRevolver_WeightedBlend(t *testing.T) {
	rev := NewRevolver(DefaultWeights())
	candidates := []CandidateValue{
		candidate("Software", "salesforce", 1, time.Now()),
		candidate("Computer Software", "pdl", 3, time.Now()),
	}
	signals := []Signal{
		{EvaluatorID: "e1", PreferredIndex: 1, Confidence: 0.9},
		{EvaluatorID: "e2", PreferredIndex: 1, Confidence: 0.9},
		{EvaluatorID: "e3", PreferredIndex: 1, Confidence: 0.9},
		{EvaluatorID: "e4", PreferredIndex: 0, Confidence: 0.5},
	}

	dec := rev.Resolve("industry", model.FieldTypeCategorical, candidates, signals)

	// candidate 0: 1.0*0.4 + (0.25*0.3)*0.3 + 0.5*0.3  = 0.5725
	// candidate 1: 0.6*0.4 + (0.75*0.3)*0.3 + 0.9*0.3  = 0.5775
	if dec.Winner != "Computer Software" {
		t.Errorf("panel preference should outweigh tier here, got %v", dec.Winner)
	}
	if math.Abs(dec.ConfidenceScore-0.5775) > 1e-9 {
		t.Errorf("expected confidence 0.5775, got %v", dec.ConfidenceScore)
	}
	if len(dec.AuditLog) != 2 {
		t.Errorf("expected per-candidate audit entries, got %v", dec.AuditLog)
	}
}

func TestRevolver_IdentityAdjustment(t *testing.T) {
	rev := NewRevolver(DefaultWeights())
	candidates := []CandidateValue{
		candidate("Satya Nadella", "apollo", 2, time.Now()),
		candidate("Julie Strau", "scraper", 2, time.Now()),
	}
	signals := []Signal{
		{PreferredIndex: 0, Confidence: 0.8},
		{PreferredIndex: 0, Confidence: 0.8},
		{PreferredIndex: 0, Confidence: 0.8},
		{PreferredIndex: 1, Confidence: 0.9},
	}

	dec := rev.Resolve("ceo", model.FieldTypeIdentity, candidates, signals)

	if dec.Winner != "Satya Nadella" {
		t.Fatalf("majority choice must win, got %v", dec.Winner)
	}
	// candidate 0: 0.8*0.4 + (0.75*0.3)*0.3 + (0.8*1.1)*0.3 = 0.6515
	if math.Abs(dec.ConfidenceScore-0.6515) > 1e-9 {
		t.Errorf("expected boosted confidence 0.6515, got %v", dec.ConfidenceScore)
	}
	if !containsRule(dec.RulesApplied, "identity_adjustment") {
		t.Errorf("expected identity_adjustment rule, got %v", dec.RulesApplied)
	}
}

func TestRevolver_TieBreaksOnRecency(t *testing.T) {
	rev := NewRevolver(DefaultWeights())
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	candidates := []CandidateValue{
		candidate("Austin, TX", "apollo", 2, older),
		candidate("Dallas, TX", "pdl", 2, newer),
	}
	// Perfectly symmetric panel: identical scores on both sides.
	signals := []Signal{
		{PreferredIndex: 0, Confidence: 0.7},
		{PreferredIndex: 1, Confidence: 0.7},
	}

	dec := rev.Resolve("headquarters", model.FieldTypeText, candidates, signals)

	if dec.Winner != "Dallas, TX" {
		t.Errorf("equal scores and tiers must break toward the fresher claim, got %v", dec.Winner)
	}
	if !containsRule(dec.RulesApplied, "tie_break") {
		t.Errorf("expected tie_break rule, got %v", dec.RulesApplied)
	}
}

func TestRevolver_FallbackPrefersTierThenRecency(t *testing.T) {
	rev := NewRevolver(DefaultWeights())
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	dec := rev.Resolve("employee_count", model.FieldTypeNumeric, []CandidateValue{
		candidate(400, "scraper", 4, newer),
		candidate(500, "pdl", 1, older),
	}, nil)

	if dec.Winner != 500 {
		t.Errorf("fallback must prefer the higher tier, got %v", dec.Winner)
	}
	if !containsRule(dec.RulesApplied, "deterministic_fallback") {
		t.Errorf("expected deterministic_fallback rule, got %v", dec.RulesApplied)
	}
	// Winner's reliability share: 1.0 / (0.4 + 1.0).
	if math.Abs(dec.ConfidenceScore-1.0/1.4) > 1e-9 {
		t.Errorf("fallback confidence should be the reliability share, got %v", dec.ConfidenceScore)
	}

	// Equal tiers break on recency.
	dec = rev.Resolve("employee_count", model.FieldTypeNumeric, []CandidateValue{
		candidate(400, "apollo", 2, older),
		candidate(500, "pdl", 2, newer),
	}, nil)
	if dec.Winner != 500 {
		t.Errorf("fallback recency tie-break failed, got %v", dec.Winner)
	}
}

func TestRevolver_AlternativesCappedAndSorted(t *testing.T) {
	rev := NewRevolver(DefaultWeights())

	var candidates []CandidateValue
	var signals []Signal
	for i := range 8 {
		candidates = append(candidates, candidate(
			fmt.Sprintf("value-%d", i), fmt.Sprintf("source-%d", i), i+1, time.Now(),
		))
		signals = append(signals, Signal{PreferredIndex: i, Confidence: 0.5})
	}

	dec := rev.Resolve("description", model.FieldTypeText, candidates, signals)

	if len(dec.Alternatives) != 5 {
		t.Fatalf("alternatives must cap at 5, got %d", len(dec.Alternatives))
	}
	for _, alt := range dec.Alternatives {
		if alt.Value == dec.Winner {
			t.Error("alternatives must exclude the winner")
		}
	}
	for i := 1; i < len(dec.Alternatives); i++ {
		if dec.Alternatives[i].Score > dec.Alternatives[i-1].Score {
			t.Error("alternatives must sort by descending score")
		}
	}
}

func TestRevolver_ConfidenceClamped(t *testing.T) {
	w := DefaultWeights()
	w.IdentityBoost = 3.0
	rev := NewRevolver(w)

	dec := rev.Resolve("ceo", model.FieldTypeIdentity, []CandidateValue{
		candidate("Satya Nadella", "pdl", 1, time.Now()),
		candidate("Julie Strau", "scraper", 5, time.Now()),
	}, []Signal{
		{PreferredIndex: 0, Confidence: 1.0},
		{PreferredIndex: 0, Confidence: 1.0},
	})

	if dec.ConfidenceScore > 1.0 {
		t.Errorf("confidence must clamp to [0,1], got %v", dec.ConfidenceScore)
	}
}

func containsRule(rules []string, want string) bool {
	for _, r := range rules {
		if r == want {
			return true
		}
	}
	return false
}
