package model

import "time"

// FieldProvenance records where a reconciled field value came from and how
// it was decided.
type FieldProvenance struct {
	Source       string   `json:"source"`
	Confidence   float64  `json:"confidence"`
	Corrected    bool     `json:"corrected,omitempty"`
	RulesApplied []string `json:"rules_applied,omitempty"`
}

// ReconciledRecord is the merged, trustworthy company profile produced by a
// reconciliation run. It is constructed once and owned by the caller.
type ReconciledRecord struct {
	ID          string                     `json:"id"`
	CompanyName string                     `json:"company_name"`
	Domain      string                     `json:"domain"`
	Fields      map[string]any             `json:"fields"`
	Provenance  map[string]FieldProvenance `json:"provenance"`
	Confidence  float64                    `json:"confidence"`
	Sources     []string                   `json:"sources"`
	AuditLog    []string                   `json:"audit_log"`
	CreatedAt   time.Time                  `json:"created_at"`
}
