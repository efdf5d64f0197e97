package resolve

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Revolver deterministically aggregates council signals into one decision.
// The reduction is order-independent: shuffling signals or candidates yields
// the same winner.
type Revolver struct {
	weights Weights
}

// NewRevolver creates a revolver with the given scoring weights. Zero-valued
// fields fall back to the defaults.
func NewRevolver(weights Weights) *Revolver {
	return &Revolver{weights: weights.withDefaults()}
}

// Resolve scores every candidate against the panel's signals and picks the
// winner. With an empty panel it falls back to the deterministic
// tier-then-recency heuristic.
func (r *Revolver) Resolve(field string, fieldType model.FieldType, candidates []CandidateValue, signals []Signal) Decision {
	if len(candidates) == 0 {
		return Decision{Field: field, RulesApplied: []string{"no_candidates"}}
	}

	if len(signals) < 1 {
		return r.fallback(field, candidates)
	}

	w := r.weights
	total := float64(len(signals))

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(candidates))
	dec := Decision{
		Field:        field,
		Signals:      signals,
		RulesApplied: []string{"weighted_blend"},
	}

	identityAdjusted := false
	for i, c := range candidates {
		base := model.TierWeight(c.Tier)

		votes := 0
		confSum := 0.0
		for _, s := range signals {
			if s.PreferredIndex == i {
				votes++
				confSum += s.Confidence
			}
		}

		agreementBonus := float64(votes) / total * w.AgreementCap
		avgConfidence := 0.0
		if votes > 0 {
			avgConfidence = confSum / float64(votes)
		}

		// Identity fields reward consensus and punish a split panel before
		// the components are blended.
		adjusted := avgConfidence
		if fieldType == model.FieldTypeIdentity {
			identityAdjusted = true
			if float64(votes) < total/2 {
				adjusted *= w.IdentityPenalty
			} else {
				adjusted *= w.IdentityBoost
			}
		}

		final := base*w.Base + agreementBonus*w.Agreement + adjusted*w.Confidence
		scores[i] = scored{idx: i, score: final}

		dec.AuditLog = append(dec.AuditLog, fmt.Sprintf(
			"candidate %q from %s (tier %d): base=%.3f votes=%d/%d agreement=%.3f avg_confidence=%.3f final=%.4f",
			canonicalValue(c.Value), c.Source, c.Tier, base, votes, len(signals), agreementBonus, avgConfidence, final,
		))
	}

	if identityAdjusted {
		dec.RulesApplied = append(dec.RulesApplied, "identity_adjustment")
	}

	// Highest score wins; ties break toward the higher tier (lower ordinal),
	// then toward the fresher timestamp.
	sort.SliceStable(scores, func(a, b int) bool {
		sa, sb := scores[a], scores[b]
		if sa.score != sb.score {
			return sa.score > sb.score
		}
		ca, cb := candidates[sa.idx], candidates[sb.idx]
		if ca.Tier != cb.Tier {
			return ca.Tier < cb.Tier
		}
		return ca.Timestamp.After(cb.Timestamp)
	})

	winner := candidates[scores[0].idx]
	dec.Winner = winner.Value
	dec.WinnerSource = winner.Source
	dec.ConfidenceScore = clamp01(scores[0].score)

	if len(scores) > 1 && scores[0].score == scores[1].score {
		dec.RulesApplied = append(dec.RulesApplied, "tie_break")
		dec.AuditLog = append(dec.AuditLog, fmt.Sprintf(
			"tie at %.4f broken toward %s (tier %d)", scores[0].score, winner.Source, winner.Tier,
		))
	}

	for _, s := range scores[1:] {
		if len(dec.Alternatives) >= r.weights.AlternativesCap {
			break
		}
		c := candidates[s.idx]
		dec.Alternatives = append(dec.Alternatives, Alternative{
			Value:  c.Value,
			Source: c.Source,
			Score:  clamp01(s.score),
		})
	}

	return dec
}

// fallback resolves without any surviving signal: highest source tier wins,
// recency breaks ties. Confidence is the winner's share of the total
// candidate reliability, so a contested field never claims certainty.
func (r *Revolver) fallback(field string, candidates []CandidateValue) Decision {
	idx := 0
	totalWeight := model.TierWeight(candidates[0].Tier)
	for i := 1; i < len(candidates); i++ {
		totalWeight += model.TierWeight(candidates[i].Tier)
		c, best := candidates[i], candidates[idx]
		if c.Tier < best.Tier || (c.Tier == best.Tier && c.Timestamp.After(best.Timestamp)) {
			idx = i
		}
	}
	winner := candidates[idx]

	dec := Decision{
		Field:           field,
		Winner:          winner.Value,
		WinnerSource:    winner.Source,
		ConfidenceScore: clamp01(model.TierWeight(winner.Tier) / totalWeight),
		RulesApplied:    []string{"deterministic_fallback"},
		AuditLog: []string{fmt.Sprintf(
			"no panel signals survived; fell back to tier heuristic: %s (tier %d)",
			winner.Source, winner.Tier,
		)},
	}
	for i, c := range candidates {
		if i == idx || len(dec.Alternatives) >= r.weights.AlternativesCap {
			continue
		}
		dec.Alternatives = append(dec.Alternatives, Alternative{
			Value:  c.Value,
			Source: c.Source,
			Score:  clamp01(model.TierWeight(c.Tier) / totalWeight),
		})
	}
	sort.SliceStable(dec.Alternatives, func(a, b int) bool {
		return dec.Alternatives[a].Score > dec.Alternatives[b].Score
	})
	return dec
}

// Resolver composes the council and the revolver behind the one entry point
// callers use per contested field.
type Resolver struct {
	council  *Council
	revolver *Revolver
}

// NewResolver wires a council and revolver together. A nil council is valid
// and forces the deterministic fallback on every contested field.
func NewResolver(council *Council, revolver *Revolver) *Resolver {
	return &Resolver{council: council, revolver: revolver}
}

// ResolveConflict decides one field. Uncontested inputs short-circuit with
// full confidence and never invoke the evaluator panel.
func (r *Resolver) ResolveConflict(ctx context.Context, field string, candidates []CandidateValue) Decision {
	if len(candidates) == 0 {
		return Decision{Field: field, RulesApplied: []string{"no_candidates"}}
	}

	if len(candidates) == 1 {
		return Decision{
			Field:           field,
			Winner:          candidates[0].Value,
			WinnerSource:    candidates[0].Source,
			ConfidenceScore: 1.0,
			RulesApplied:    []string{"single_source"},
			AuditLog:        []string{fmt.Sprintf("only %s reported a value", candidates[0].Source)},
		}
	}

	if unanimous(candidates) {
		best := mostReliable(candidates)
		sources := make([]string, len(candidates))
		for i, c := range candidates {
			sources[i] = c.Source
		}
		return Decision{
			Field:           field,
			Winner:          best.Value,
			WinnerSource:    best.Source,
			ConfidenceScore: 1.0,
			RulesApplied:    []string{"unanimous_sources"},
			AuditLog:        []string{fmt.Sprintf("all sources agree: %v", sources)},
		}
	}

	fieldType := model.FieldTypeFor(field)
	var signals []Signal
	if r.council != nil {
		reliability := make(map[string]float64, len(candidates))
		for _, c := range candidates {
			reliability[c.Source] = model.TierWeight(c.Tier)
		}
		signals = r.council.Gather(ctx, field, fieldType, candidates, reliability)
	}

	dec := r.revolver.Resolve(field, fieldType, candidates, signals)
	zap.L().Debug("resolved contested field",
		zap.String("field", field),
		zap.String("winner_source", dec.WinnerSource),
		zap.Float64("confidence", dec.ConfidenceScore),
		zap.Strings("rules", dec.RulesApplied),
	)
	return dec
}

func unanimous(candidates []CandidateValue) bool {
	first := canonicalValue(candidates[0].Value)
	for _, c := range candidates[1:] {
		if canonicalValue(c.Value) != first {
			return false
		}
	}
	return true
}

func mostReliable(candidates []CandidateValue) CandidateValue {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Tier < best.Tier || (c.Tier == best.Tier && c.Timestamp.After(best.Timestamp)) {
			best = c
		}
	}
	return best
}
