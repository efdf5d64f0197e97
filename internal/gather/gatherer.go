package gather

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// FetchResult is the uniform outcome of one source's fetch. Constructed once
// and immutable thereafter.
type FetchResult struct {
	Source       string         `json:"source"`
	Tier         int            `json:"tier"`
	Success      bool           `json:"success"`
	Data         map[string]any `json:"data,omitempty"`
	Error        string         `json:"error,omitempty"`
	CircuitOpen  bool           `json:"circuit_open,omitempty"`
	AttemptCount int            `json:"attempt_count"`
	FetchedAt    time.Time      `json:"fetched_at"`
	Duration     time.Duration  `json:"duration"`
}

// Config controls gatherer timeouts and retry behavior.
type Config struct {
	// PerCallTimeout bounds each individual fetch attempt. Default: 20s.
	PerCallTimeout time.Duration
	// OverallTimeout caps the whole fan-out; sources still in flight when it
	// expires surface as failed results. Default: 30s.
	OverallTimeout time.Duration
	// Retry controls backoff between attempts against one source.
	Retry resilience.RetryConfig
}

// DefaultConfig returns sensible gatherer defaults.
func DefaultConfig() Config {
	return Config{
		PerCallTimeout: 20 * time.Second,
		OverallTimeout: 30 * time.Second,
		Retry:          resilience.DefaultRetryConfig(),
	}
}

// Gatherer calls each configured source in parallel. A slow or failing
// source never blocks or poisons the others.
type Gatherer struct {
	registry *Registry
	breakers *resilience.SourceBreakers
	limiters *resilience.SourceLimiters
	cfg      Config
}

// New creates a gatherer. breakers and limiters are shared across calls so
// failure state survives between invocations.
func New(registry *Registry, breakers *resilience.SourceBreakers, limiters *resilience.SourceLimiters, cfg Config) *Gatherer {
	if cfg.PerCallTimeout <= 0 {
		cfg.PerCallTimeout = 20 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 30 * time.Second
	}
	return &Gatherer{
		registry: registry,
		breakers: breakers,
		limiters: limiters,
		cfg:      cfg,
	}
}

// BreakerStates exposes the live circuit states for observability.
func (g *Gatherer) BreakerStates() map[string]resilience.CircuitState {
	return g.breakers.States()
}

// Gather fetches company data from the named sources concurrently and waits
// for the full set (bounded by the overall timeout). The result slice is
// ordered like the sources argument regardless of completion order.
func (g *Gatherer) Gather(ctx context.Context, company model.Company, sources []string) []FetchResult {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.OverallTimeout)
	defer cancel()

	results := make([]FetchResult, len(sources))

	// errgroup without a limit: one goroutine per source. Errors never
	// propagate — every outcome lands in its result slot.
	grp, gctx := errgroup.WithContext(ctx)
	for i, name := range sources {
		grp.Go(func() error {
			results[i] = g.fetchOne(gctx, company, name)
			return nil
		})
	}
	_ = grp.Wait()

	return results
}

func (g *Gatherer) fetchOne(ctx context.Context, company model.Company, source string) FetchResult {
	start := time.Now()
	res := FetchResult{Source: source, FetchedAt: start}

	p := g.registry.Get(source)
	if p == nil {
		res.Error = "unknown source"
		return res
	}
	res.Tier = p.Tier()

	breaker := g.breakers.Get(source)
	if !breaker.CanExecute() {
		// Synthetic failure: no network call is made.
		res.CircuitOpen = true
		res.Error = resilience.ErrCircuitOpen.Error()
		res.Duration = time.Since(start)
		zap.L().Debug("gather: circuit open, skipping source",
			zap.String("source", source),
			zap.String("company", company.Domain),
		)
		return res
	}

	retryCfg := g.cfg.Retry
	retryCfg.OnRetry = resilience.RetryLogger(source, "fetch")

	attempts := 0
	data, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (map[string]any, error) {
		attempts++

		if err := g.limiters.Get(source).Acquire(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.PerCallTimeout)
		defer cancel()
		return p.Fetch(callCtx, company)
	})

	res.AttemptCount = attempts
	res.Duration = time.Since(start)

	if err != nil {
		breaker.RecordFailure()
		res.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			res.Error = "deadline exceeded"
		}
		zap.L().Warn("gather: source failed",
			zap.String("source", source),
			zap.String("company", company.Domain),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return res
	}

	breaker.RecordSuccess()
	res.Success = true
	res.Data = data
	zap.L().Debug("gather: source succeeded",
		zap.String("source", source),
		zap.String("company", company.Domain),
		zap.Int("attempts", attempts),
		zap.Duration("duration", res.Duration),
	)
	return res
}
