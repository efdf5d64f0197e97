package resolve

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Evaluator is one panel member's reasoning call. Implementations are
// stateless; each invocation sees the same candidates and reliability map and
// answers independently.
type Evaluator interface {
	ID() string
	Evaluate(ctx context.Context, field string, fieldType model.FieldType, candidates []CandidateValue, reliability map[string]float64) (Signal, error)
}

// Council gathers a fixed-size panel of preference signals by invoking the
// evaluator once per member, in parallel. Failed members are dropped
// silently — partial panels are expected and handled downstream.
type Council struct {
	evaluator Evaluator
	size      int
}

// NewCouncil creates a council of the given panel size over one evaluator.
func NewCouncil(evaluator Evaluator, size int) *Council {
	if size <= 0 {
		size = DefaultWeights().PanelSize
	}
	return &Council{evaluator: evaluator, size: size}
}

// Gather collects up to c.size signals for one contested field. The returned
// slice holds only the signals that survived; it may be empty.
func (c *Council) Gather(ctx context.Context, field string, fieldType model.FieldType, candidates []CandidateValue, reliability map[string]float64) []Signal {
	var mu sync.Mutex
	signals := make([]Signal, 0, c.size)

	grp, gctx := errgroup.WithContext(ctx)
	for range c.size {
		grp.Go(func() error {
			sig, err := c.evaluator.Evaluate(gctx, field, fieldType, candidates, reliability)
			if err != nil {
				// One lost panel member never fails the field.
				zap.L().Debug("council: evaluator dropped",
					zap.String("field", field),
					zap.Error(err),
				)
				return nil
			}
			if sig.PreferredIndex < 0 || sig.PreferredIndex >= len(candidates) {
				zap.L().Debug("council: signal with out-of-range preference dropped",
					zap.String("field", field),
					zap.Int("preferred_index", sig.PreferredIndex),
				)
				return nil
			}
			mu.Lock()
			signals = append(signals, sig)
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	zap.L().Debug("council: panel complete",
		zap.String("field", field),
		zap.Int("requested", c.size),
		zap.Int("survived", len(signals)),
	)
	return signals
}
