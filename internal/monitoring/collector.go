// Package monitoring collects run and queue health metrics and raises
// webhook alerts when thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsQueued    int     `json:"runs_queued"`
	RunsFailRate  float64 `json:"runs_fail_rate"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Stored record totals (all time).
	RecordsTotal         int     `json:"records_total"`
	RecordsAvgConfidence float64 `json:"records_avg_confidence"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Live circuit breaker states by source.
	BreakerStates map[string]string `json:"breaker_states,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// BreakerStater exposes live circuit states; satisfied by *gather.Gatherer.
type BreakerStater interface {
	BreakerStates() map[string]resilience.CircuitState
}

// Collector gathers metrics from the store and the gatherer's breakers.
type Collector struct {
	store    store.Store
	breakers BreakerStater
}

// NewCollector creates a new metrics collector. breakers may be nil when no
// gatherer is running in this process.
func NewCollector(st store.Store, breakers BreakerStater) *Collector {
	return &Collector{store: st, breakers: breakers}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var confidenceSum float64
	var scoredRuns int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusQueued:
			snap.RunsQueued++
		}
		if r.Record != nil {
			confidenceSum += r.Record.Confidence
			scoredRuns++
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.RunsFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if scoredRuns > 0 {
		snap.AvgConfidence = confidenceSum / float64(scoredRuns)
	}

	stats, err := c.store.RecordStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: record stats")
	}
	snap.RecordsTotal = stats.Total
	snap.RecordsAvgConfidence = stats.AvgConfidence

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	if c.breakers != nil {
		states := c.breakers.BreakerStates()
		snap.BreakerStates = make(map[string]string, len(states))
		for source, state := range states {
			snap.BreakerStates[source] = state.String()
		}
	}

	return snap, nil
}
