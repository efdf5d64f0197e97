package model

import "time"

// RunStatus represents the current state of a reconciliation run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusGathering  RunStatus = "gathering"
	RunStatusValidating RunStatus = "validating"
	RunStatusResolving  RunStatus = "resolving"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Company identifies a company to reconcile.
type Company struct {
	Name         string `json:"name"`
	Domain       string `json:"domain"`
	SalesforceID string `json:"salesforce_id,omitempty"`
	NotionPageID string `json:"notion_page_id,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Run represents a single reconciliation run for a company.
type Run struct {
	ID        string            `json:"id"`
	Company   Company           `json:"company"`
	Status    RunStatus         `json:"status"`
	Record    *ReconciledRecord `json:"record,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Stakeholder is a person attached to a company profile by a provider.
type Stakeholder struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
}
