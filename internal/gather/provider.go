// Package gather fans out to the configured data providers in parallel,
// wrapping every call with circuit breaking, retry, and rate limiting.
package gather

import (
	"context"
	"sync"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Provider supplies one source's view of a company profile. Implementations
// are thin wrappers over provider APIs; the returned map uses canonical
// field keys (ceo, company_name, employee_count, ...) plus an optional
// "stakeholders" list.
type Provider interface {
	// Name returns the source identifier (apollo, pdl, salesforce, ...).
	Name() string
	// Tier returns the source's ordinal reliability tier, 1 = most reliable.
	Tier() int
	// Fetch retrieves the provider's raw data for a company.
	Fetch(ctx context.Context, company model.Company) (map[string]any, error)
}

// Registry manages the available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Tiers returns the tier of every registered provider, keyed by name.
func (r *Registry) Tiers() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tiers := make(map[string]int, len(r.providers))
	for name, p := range r.providers {
		tiers[name] = p.Tier()
	}
	return tiers
}
