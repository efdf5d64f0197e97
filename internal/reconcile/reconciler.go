// Package reconcile composes gathering, validation, and conflict resolution
// into the one operation callers care about: company in, trustworthy record
// out.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/gather"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resolve"
	"github.com/sells-group/reconcile-cli/internal/validate"
)

// nonResolvedFields are carried on the record but never put before the
// evaluator panel.
var nonResolvedFields = map[string]bool{
	"stakeholders":  true,
	"salesforce_id": true,
}

// Reconciler is the composition root: Gatherer → Validator → Resolver per
// field → merged record. A single source or field failure never aborts the
// run; it only lowers confidence and shows up in the audit trail.
type Reconciler struct {
	gatherer  *gather.Gatherer
	validator *validate.Validator
	resolver  *resolve.Resolver
	sources   []string

	nowFunc func() time.Time
}

// New creates a reconciler over the given default source list.
func New(g *gather.Gatherer, v *validate.Validator, r *resolve.Resolver, sources []string) *Reconciler {
	return &Reconciler{
		gatherer:  g,
		validator: v,
		resolver:  r,
		sources:   sources,
		nowFunc:   time.Now,
	}
}

// Reconcile produces the merged record for one company. It errors only when
// no source returned any data at all.
func (r *Reconciler) Reconcile(ctx context.Context, company model.Company) (*model.ReconciledRecord, error) {
	return r.ReconcileSources(ctx, company, r.sources)
}

// ReconcileSources is Reconcile with an explicit source list.
func (r *Reconciler) ReconcileSources(ctx context.Context, company model.Company, sources []string) (*model.ReconciledRecord, error) {
	record := &model.ReconciledRecord{
		ID:          uuid.NewString(),
		CompanyName: company.Name,
		Domain:      company.Domain,
		Fields:      make(map[string]any),
		Provenance:  make(map[string]model.FieldProvenance),
		CreatedAt:   r.nowFunc(),
	}

	results := r.gatherer.Gather(ctx, company, sources)

	views := make(map[string]*sourceView)

	for _, res := range results {
		if !res.Success {
			// Degradation stays visible even when the run succeeds.
			record.AuditLog = append(record.AuditLog, fmt.Sprintf(
				"gather: %s failed (%s) after %d attempt(s)", res.Source, res.Error, res.AttemptCount))
			continue
		}
		record.Sources = append(record.Sources, res.Source)

		vres := r.validator.Validate(company.Domain, res.Data, res.Source)
		for _, issue := range vres.Issues {
			record.AuditLog = append(record.AuditLog, fmt.Sprintf(
				"validate: %s: [%s] %s", res.Source, issue.Severity, issue.Message))
		}

		// Corrections substitute before resolution so a known-wrong claim
		// never reaches the panel.
		data := make(map[string]any, len(res.Data))
		for k, v := range res.Data {
			data[k] = v
		}
		corrected := make(map[string]bool)
		for field, val := range vres.CorrectedValues {
			data[field] = val
			corrected[field] = true
			record.AuditLog = append(record.AuditLog, fmt.Sprintf(
				"validate: %s: corrected %s to %v", res.Source, field, val))
		}

		views[res.Source] = &sourceView{result: res, data: data, validation: vres, corrected: corrected}
	}

	if len(views) == 0 {
		record.AuditLog = append(record.AuditLog, "reconcile: every source failed")
		return record, eris.New("reconcile: no source returned data")
	}

	// Candidate lists per field, weighted by source validation confidence.
	candidatesByField := make(map[string][]resolve.CandidateValue)
	for source, view := range views {
		for field, value := range view.data {
			if nonResolvedFields[field] {
				continue
			}
			candidatesByField[field] = append(candidatesByField[field], resolve.CandidateValue{
				Value:     value,
				Source:    source,
				Tier:      view.result.Tier,
				Timestamp: view.result.FetchedAt,
				Metadata: map[string]any{
					"validation_confidence": view.validation.ConfidenceScore,
				},
			})
		}
	}

	fields := make([]string, 0, len(candidatesByField))
	for f := range candidatesByField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var confidenceSum float64
	for _, field := range fields {
		candidates := candidatesByField[field]

		var rangeRule bool
		if model.FieldTypeFor(field) == model.FieldTypeNumeric {
			candidates, rangeRule = refineNumericRanges(candidates)
		}

		dec := r.resolver.ResolveConflict(ctx, field, candidates)
		if dec.Winner == nil {
			continue
		}
		if rangeRule {
			dec.RulesApplied = append(dec.RulesApplied, "range_refinement")
			record.AuditLog = append(record.AuditLog, fmt.Sprintf(
				"resolve: %s: range claims collapsed onto the exact value", field))
		}

		record.Fields[field] = dec.Winner
		record.Provenance[field] = model.FieldProvenance{
			Source:       dec.WinnerSource,
			Confidence:   dec.ConfidenceScore,
			Corrected:    views[dec.WinnerSource] != nil && views[dec.WinnerSource].corrected[field],
			RulesApplied: dec.RulesApplied,
		}
		confidenceSum += dec.ConfidenceScore

		record.AuditLog = append(record.AuditLog, fmt.Sprintf(
			"resolve: %s = %v from %s (confidence %.2f)", field, dec.Winner, dec.WinnerSource, dec.ConfidenceScore))
		record.AuditLog = append(record.AuditLog, dec.AuditLog...)
	}

	r.attachStakeholders(record, views)

	if n := len(record.Fields); n > 0 {
		record.Confidence = confidenceSum / float64(n)
	}
	sort.Strings(record.Sources)

	if record.CompanyName == "" {
		if name, ok := record.Fields["company_name"].(string); ok {
			record.CompanyName = name
		}
	}

	zap.L().Info("reconciled company",
		zap.String("domain", company.Domain),
		zap.Strings("sources", record.Sources),
		zap.Int("fields", len(record.Fields)),
		zap.Float64("confidence", record.Confidence),
	)
	return record, nil
}

// sourceView is one surviving source's data after validation, with
// corrections already substituted.
type sourceView struct {
	result     gather.FetchResult
	data       map[string]any
	validation validate.Result
	corrected  map[string]bool
}

// attachStakeholders carries the stakeholder list from the source whose
// validation scored highest among those that reported one.
func (r *Reconciler) attachStakeholders(record *model.ReconciledRecord, views map[string]*sourceView) {
	bestSource := ""
	bestScore := -1.0
	for source, view := range views {
		if _, ok := view.data["stakeholders"]; !ok {
			continue
		}
		score := view.validation.ConfidenceScore
		if score > bestScore || (score == bestScore && source < bestSource) {
			bestSource, bestScore = source, score
		}
	}
	if bestSource == "" {
		return
	}
	record.Fields["stakeholders"] = views[bestSource].data["stakeholders"]
	record.Provenance["stakeholders"] = model.FieldProvenance{
		Source:     bestSource,
		Confidence: bestScore,
	}
}
