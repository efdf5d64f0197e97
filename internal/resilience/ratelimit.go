package resilience

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// RateLimiter caps outbound requests to a provider at its contractual rate
// using a token bucket. Acquire never rejects a caller — it blocks until a
// token regenerates or the context is cancelled.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst equal to the integer portion of rps (minimum 1). A non-positive rps
// disables limiting.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
	}
}

// Acquire consumes one token, blocking until one is available. Returns an
// error only when ctx is cancelled before a token regenerates.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "resilience: rate limit wait")
	}
	return nil
}

// Allow reports whether a token is immediately available, consuming it if so.
func (l *RateLimiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// SourceLimiters manages one rate limiter per provider source.
type SourceLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
	rates    map[string]float64
	fallback float64
}

// NewSourceLimiters creates a registry of per-source rate limiters. rates
// maps source name to requests per second; sources absent from the map get
// the fallback rate.
func NewSourceLimiters(rates map[string]float64, fallback float64) *SourceLimiters {
	return &SourceLimiters{
		limiters: make(map[string]*RateLimiter),
		rates:    rates,
		fallback: fallback,
	}
}

// Get returns the rate limiter for the named source, creating one if needed.
func (sl *SourceLimiters) Get(source string) *RateLimiter {
	sl.mu.RLock()
	l, ok := sl.limiters[source]
	sl.mu.RUnlock()
	if ok {
		return l
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if l, ok = sl.limiters[source]; ok {
		return l
	}
	rps := sl.fallback
	if r, ok := sl.rates[source]; ok {
		rps = r
	}
	l = NewRateLimiter(rps)
	sl.limiters[source] = l
	return l
}
