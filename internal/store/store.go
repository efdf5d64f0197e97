package store

import (
	"context"
	"time"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Domain       string          `json:"domain,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// RecordStats summarizes the reconciled records on hand.
type RecordStats struct {
	Total         int     `json:"total"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Store defines the persistence interface for reconciliation runs and
// their resulting records.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, company model.Company) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunRecord(ctx context.Context, runID string, record *model.ReconciledRecord) error
	FailRun(ctx context.Context, runID string, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Reconciled records
	SaveRecord(ctx context.Context, record *model.ReconciledRecord) error
	SaveRecords(ctx context.Context, records []*model.ReconciledRecord) (int64, error)
	GetLatestRecord(ctx context.Context, domain string) (*model.ReconciledRecord, error)
	RecordStats(ctx context.Context) (*RecordStats, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
