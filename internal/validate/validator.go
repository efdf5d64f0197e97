// Package validate checks provider-reported company data against the static
// known-facts table and generic sanity rules before conflict resolution.
package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/facts"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// Issue describes a single data-quality finding for one source's data.
type Issue struct {
	Field          string         `json:"field"`
	ProvidedValue  any            `json:"provided_value"`
	ExpectedValues []string       `json:"expected_values,omitempty"`
	Severity       facts.Severity `json:"severity"`
	Message        string         `json:"message"`
	Source         string         `json:"source"`
}

// Result is the outcome of validating one source's data. Validation never
// fails — data-quality problems only lower the confidence score.
type Result struct {
	Source          string         `json:"source"`
	IsValid         bool           `json:"is_valid"`
	ConfidenceScore float64        `json:"confidence_score"`
	Issues          []Issue        `json:"issues,omitempty"`
	CorrectedValues map[string]any `json:"corrected_values,omitempty"`
}

// CriticalIssues returns the critical findings only.
func (r Result) CriticalIssues() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == facts.SeverityCritical {
			out = append(out, is)
		}
	}
	return out
}

// Sanity bounds for numeric fields.
const (
	maxEmployeeCount = 10_000_000
	minFoundedYear   = 1800
)

// requiredFields produce a warning when present but empty or whitespace.
var requiredFields = []string{"company_name", "website"}

// Validator inspects raw provider fields. It holds only immutable state and
// is safe for concurrent use.
type Validator struct {
	table *facts.Table

	// nowFunc allows test injection of time (founded_year upper bound).
	nowFunc func() time.Time
}

// New creates a validator over the given facts table. A nil table falls back
// to the built-in defaults.
func New(table *facts.Table) *Validator {
	if table == nil {
		table = facts.Default()
	}
	return &Validator{table: table, nowFunc: time.Now}
}

// Validate checks one source's raw data for the given domain. It always
// returns a result; domains absent from the facts table only undergo the
// generic sanity checks.
func (v *Validator) Validate(domain string, data map[string]any, source string) Result {
	res := Result{
		Source:          source,
		ConfidenceScore: 1.0,
		CorrectedValues: make(map[string]any),
	}

	known, hasFacts := v.table.Lookup(domain)
	if hasFacts {
		v.checkKnownFacts(known, data, source, &res)
	}
	v.checkSanity(data, source, &res)
	v.checkStakeholders(known, data, source, &res)

	res.IsValid = len(res.CriticalIssues()) == 0
	res.ConfidenceScore = clamp01(res.ConfidenceScore)

	if len(res.Issues) > 0 {
		zap.L().Debug("validation issues",
			zap.String("domain", domain),
			zap.String("source", source),
			zap.Int("issues", len(res.Issues)),
			zap.Float64("confidence", res.ConfidenceScore),
		)
	}
	return res
}

func (v *Validator) checkKnownFacts(known map[string][]string, data map[string]any, source string, res *Result) {
	for field, acceptable := range known {
		severity, tracked := facts.SeverityFor(field)
		if !tracked {
			continue
		}
		raw, present := data[field]
		provided := stringify(raw)
		if !present || strings.TrimSpace(provided) == "" {
			continue
		}
		if facts.Matches(provided, acceptable) {
			continue
		}

		res.Issues = append(res.Issues, Issue{
			Field:          field,
			ProvidedValue:  raw,
			ExpectedValues: acceptable,
			Severity:       severity,
			Message:        fmt.Sprintf("%s %q does not match any known value", field, provided),
			Source:         source,
		})
		res.ConfidenceScore -= facts.Penalty(severity)

		// Critical fields are auto-corrected to the first known value.
		if severity == facts.SeverityCritical && len(acceptable) > 0 {
			res.CorrectedValues[field] = acceptable[0]
		}
	}
}

func (v *Validator) checkSanity(data map[string]any, source string, res *Result) {
	if raw, ok := data["employee_count"]; ok {
		if n, ok := toInt(raw); ok && (n < 0 || n > maxEmployeeCount) {
			res.Issues = append(res.Issues, Issue{
				Field:         "employee_count",
				ProvidedValue: raw,
				Severity:      facts.SeverityWarning,
				Message:       fmt.Sprintf("employee_count %d outside plausible range [0, %d]", n, maxEmployeeCount),
				Source:        source,
			})
			res.ConfidenceScore -= facts.Penalty(facts.SeverityWarning)
		}
	}

	if raw, ok := data["founded_year"]; ok {
		if y, ok := toInt(raw); ok {
			currentYear := v.nowFunc().Year()
			if y < minFoundedYear || y > currentYear {
				res.Issues = append(res.Issues, Issue{
					Field:         "founded_year",
					ProvidedValue: raw,
					Severity:      facts.SeverityWarning,
					Message:       fmt.Sprintf("founded_year %d outside plausible range [%d, %d]", y, minFoundedYear, currentYear),
					Source:        source,
				})
				res.ConfidenceScore -= facts.Penalty(facts.SeverityWarning)
			}
		}
	}

	for _, field := range requiredFields {
		raw, present := data[field]
		if !present {
			continue
		}
		if strings.TrimSpace(stringify(raw)) == "" {
			res.Issues = append(res.Issues, Issue{
				Field:         field,
				ProvidedValue: raw,
				Severity:      facts.SeverityWarning,
				Message:       fmt.Sprintf("required field %s is empty", field),
				Source:        source,
			})
			res.ConfidenceScore -= facts.Penalty(facts.SeverityWarning)
		}
	}
}

// checkStakeholders scans the stakeholder list for placeholder names and for
// a claimed CEO who contradicts the known-facts CEO.
func (v *Validator) checkStakeholders(known map[string][]string, data map[string]any, source string, res *Result) {
	people := toStakeholders(data["stakeholders"])
	if len(people) == 0 {
		return
	}

	knownCEOs := known["ceo"]

	for _, p := range people {
		if v.table.IsPlaceholder(p.Name) {
			res.Issues = append(res.Issues, Issue{
				Field:         "stakeholders",
				ProvidedValue: p.Name,
				Severity:      facts.SeverityWarning,
				Message:       fmt.Sprintf("stakeholder %q looks like placeholder data", p.Name),
				Source:        source,
			})
			res.ConfidenceScore -= facts.Penalty(facts.SeverityWarning)
			continue
		}

		if isCEORole(p) && len(knownCEOs) > 0 && !facts.Matches(p.Name, knownCEOs) {
			res.Issues = append(res.Issues, Issue{
				Field:          "stakeholders",
				ProvidedValue:  p.Name,
				ExpectedValues: knownCEOs,
				Severity:       facts.SeverityCritical,
				Message:        fmt.Sprintf("stakeholder %q labeled CEO does not match known CEO", p.Name),
				Source:         source,
			})
			res.ConfidenceScore -= facts.Penalty(facts.SeverityCritical)
		}
	}
}

// CrossValidateSources validates each source's data independently, then
// merges by walking sources in descending order of their own confidence,
// taking the first non-empty value per field and preferring corrected values
// over raw ones. The overall score is the top source's confidence.
func (v *Validator) CrossValidateSources(domain string, sourceData map[string]map[string]any) (map[string]any, float64, map[string]Result) {
	results := make(map[string]Result, len(sourceData))
	names := make([]string, 0, len(sourceData))
	for name, data := range sourceData {
		results[name] = v.Validate(domain, data, name)
		names = append(names, name)
	}

	// Confidence descending; name ascending for a deterministic tie-break.
	sort.Slice(names, func(i, j int) bool {
		ci, cj := results[names[i]].ConfidenceScore, results[names[j]].ConfidenceScore
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})

	merged := make(map[string]any)
	for _, name := range names {
		data := sourceData[name]
		res := results[name]

		fields := make([]string, 0, len(data))
		for f := range data {
			fields = append(fields, f)
		}
		sort.Strings(fields)

		for _, f := range fields {
			if _, taken := merged[f]; taken {
				continue
			}
			val := data[f]
			if corrected, ok := res.CorrectedValues[f]; ok {
				val = corrected
			}
			if isEmpty(val) {
				continue
			}
			merged[f] = val
		}
	}

	overall := 0.0
	if len(names) > 0 {
		overall = results[names[0]].ConfidenceScore
	}
	return merged, overall, results
}

func isCEORole(p model.Stakeholder) bool {
	role := facts.Normalize(p.Role)
	title := facts.Normalize(p.Title)
	return role == "ceo" || title == "ceo" ||
		strings.Contains(role, "chief executive") || strings.Contains(title, "chief executive")
}

// toStakeholders accepts the shapes providers actually return: typed
// stakeholders, JSON-decoded []any of maps, or []map[string]any.
func toStakeholders(raw any) []model.Stakeholder {
	switch list := raw.(type) {
	case []model.Stakeholder:
		return list
	case []map[string]any:
		out := make([]model.Stakeholder, 0, len(list))
		for _, m := range list {
			out = append(out, stakeholderFromMap(m))
		}
		return out
	case []any:
		var out []model.Stakeholder
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, stakeholderFromMap(m))
			}
		}
		return out
	default:
		return nil
	}
}

func stakeholderFromMap(m map[string]any) model.Stakeholder {
	return model.Stakeholder{
		Name:  stringify(m["name"]),
		Role:  stringify(m["role"]),
		Title: stringify(m["title"]),
		Email: stringify(m["email"]),
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	default:
		return false
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
