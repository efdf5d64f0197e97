// Package auth obtains and refreshes bearer credentials for provider APIs
// using a prioritized strategy chain.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is subtracted from a token's lifetime so a credential
// is never presented right at its expiry boundary.
const DefaultSafetyMargin = 300 * time.Second

// Token is a bearer credential with a known (or assumed) expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at time now, honoring
// the safety margin.
func (t Token) Valid(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

// Strategy obtains a credential through one mechanism. Strategies are tried
// in order; each costs one network round trip at most.
type Strategy interface {
	Name() string
	Obtain(ctx context.Context) (Token, error)
}

// Authenticator runs a strategy chain and caches the resulting token.
// Refreshes are single-flight: concurrent callers that observe an expired
// token share one refresh round trip.
type Authenticator struct {
	strategies []Strategy
	margin     time.Duration

	mu      sync.Mutex
	current Token

	group singleflight.Group

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithSafetyMargin overrides the default 300s expiry safety margin.
func WithSafetyMargin(d time.Duration) Option {
	return func(a *Authenticator) {
		if d >= 0 {
			a.margin = d
		}
	}
}

// NewAuthenticator creates an authenticator over the given strategy chain,
// most preferred first.
func NewAuthenticator(strategies []Strategy, opts ...Option) *Authenticator {
	a := &Authenticator{
		strategies: strategies,
		margin:     DefaultSafetyMargin,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Token returns a valid access token, running the strategy chain if the
// cached one has expired (or is about to).
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.current.Valid(a.nowFunc(), a.margin) {
		tok := a.current.AccessToken
		a.mu.Unlock()
		return tok, nil
	}
	a.mu.Unlock()

	// Single flight key is constant: one refresh per authenticator instance.
	v, err, _ := a.group.Do("refresh", func() (any, error) {
		// Re-check under the lock — a racing caller may have refreshed
		// while this one waited to enter the group.
		a.mu.Lock()
		if a.current.Valid(a.nowFunc(), a.margin) {
			tok := a.current
			a.mu.Unlock()
			return tok, nil
		}
		a.mu.Unlock()

		tok, err := a.obtain(ctx)
		if err != nil {
			return Token{}, err
		}

		a.mu.Lock()
		a.current = tok
		a.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(Token).AccessToken, nil
}

// EnsureValid refreshes the cached token if needed. It is a no-op while the
// current token's lifetime minus the safety margin has not elapsed.
func (a *Authenticator) EnsureValid(ctx context.Context) error {
	_, err := a.Token(ctx)
	return err
}

// Invalidate discards the cached token so the next call re-runs the chain.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = Token{}
}

func (a *Authenticator) obtain(ctx context.Context) (Token, error) {
	var lastErr error
	for _, s := range a.strategies {
		tok, err := s.Obtain(ctx)
		if err == nil {
			zap.L().Debug("auth: obtained token",
				zap.String("strategy", s.Name()),
				zap.Time("expires_at", tok.ExpiresAt),
			)
			return tok, nil
		}
		lastErr = err
		zap.L().Warn("auth: strategy failed, trying next",
			zap.String("strategy", s.Name()),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		return Token{}, eris.New("auth: no strategies configured")
	}
	return Token{}, eris.Wrap(lastErr, "auth: all strategies exhausted")
}
