// Package resolve turns conflicting per-field candidate values into one
// winning value with a calibrated confidence score, using a panel of
// independent reasoning evaluators aggregated deterministically.
package resolve

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CandidateValue is one source's claim for a contested field.
type CandidateValue struct {
	Value     any            `json:"value"`
	Source    string         `json:"source"`
	Tier      int            `json:"tier"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Signal is one panel member's independent preference for a contested field.
// Produced in parallel, consumed once by the aggregation step.
type Signal struct {
	EvaluatorID       string  `json:"evaluator_id"`
	PreferredIndex    int     `json:"preferred_index"`
	Confidence        float64 `json:"confidence"`
	ReliabilityWeight float64 `json:"reliability_weight"`
	RecencyScore      float64 `json:"recency_score"`
	AgreementScore    float64 `json:"agreement_score"`
	Reasoning         string  `json:"reasoning,omitempty"`
}

// Alternative is a losing candidate with its final score.
type Alternative struct {
	Value  any     `json:"value"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Decision is the durable resolution output for one field.
type Decision struct {
	Field           string        `json:"field"`
	Winner          any           `json:"winner"`
	WinnerSource    string        `json:"winner_source"`
	ConfidenceScore float64       `json:"confidence_score"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	RulesApplied    []string      `json:"rules_applied,omitempty"`
	Signals         []Signal      `json:"signals,omitempty"`
	AuditLog        []string      `json:"audit_log,omitempty"`
}

// Weights holds the scoring constants. They are heuristic and deliberately
// configuration, not hard-coded literals.
type Weights struct {
	Base            float64 `mapstructure:"base"`
	Agreement       float64 `mapstructure:"agreement"`
	Confidence      float64 `mapstructure:"confidence"`
	AgreementCap    float64 `mapstructure:"agreement_cap"`
	IdentityBoost   float64 `mapstructure:"identity_boost"`
	IdentityPenalty float64 `mapstructure:"identity_penalty"`
	PanelSize       int     `mapstructure:"panel_size"`
	AlternativesCap int     `mapstructure:"alternatives_cap"`
}

// DefaultWeights returns the standard scoring blend: 0.4 source reliability,
// 0.3 panel agreement, 0.3 average confidence.
func DefaultWeights() Weights {
	return Weights{
		Base:            0.4,
		Agreement:       0.3,
		Confidence:      0.3,
		AgreementCap:    0.3,
		IdentityBoost:   1.1,
		IdentityPenalty: 0.9,
		PanelSize:       12,
		AlternativesCap: 5,
	}
}

func (w Weights) withDefaults() Weights {
	d := DefaultWeights()
	if w.Base <= 0 {
		w.Base = d.Base
	}
	if w.Agreement <= 0 {
		w.Agreement = d.Agreement
	}
	if w.Confidence <= 0 {
		w.Confidence = d.Confidence
	}
	if w.AgreementCap <= 0 {
		w.AgreementCap = d.AgreementCap
	}
	if w.IdentityBoost <= 0 {
		w.IdentityBoost = d.IdentityBoost
	}
	if w.IdentityPenalty <= 0 {
		w.IdentityPenalty = d.IdentityPenalty
	}
	if w.PanelSize <= 0 {
		w.PanelSize = d.PanelSize
	}
	if w.AlternativesCap <= 0 {
		w.AlternativesCap = d.AlternativesCap
	}
	return w
}

// canonicalValue renders a candidate value into a comparison key so "500" and
// 500 and " 500 " count as the same claim.
func canonicalValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(n))
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
