package authcore

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// FederatedProfile is the normalized identity an external provider asserts.
type FederatedProfile struct {
	Provider   string
	ProviderID string
	Email      string
	Name       string
	Avatar     string
}

// Validate rejects profiles the resolver cannot turn into an account.
func (p *FederatedProfile) Validate() error {
	if !IsKnownProvider(p.Provider) || p.Provider == ProviderLocal {
		return NewAuthError(ErrCodeInvalidProvider, fmt.Sprintf("unsupported provider %q", p.Provider), "provider")
	}
	if p.ProviderID == "" {
		return NewAuthError(ErrCodeInvalidProfile, "provider did not return a subject id", "provider_id")
	}
	if ValidateEmail(p.Email) != nil {
		return NewAuthError(ErrCodeInvalidProfile, "provider did not return a valid email", "email")
	}
	return nil
}

// ProviderAdapter runs one provider's redirect and code exchange.
type ProviderAdapter interface {
	Name() string
	AuthCodeURL(state string) string
	ResolveFederatedIdentity(ctx context.Context, code string) (*FederatedProfile, error)
}

// ProviderRegistry maps provider names to adapters.
type ProviderRegistry struct {
	adapters map[string]ProviderAdapter
}

func NewProviderRegistry(adapters ...ProviderAdapter) *ProviderRegistry {
	r := &ProviderRegistry{adapters: make(map[string]ProviderAdapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *ProviderRegistry) Register(a ProviderAdapter) {
	r.adapters[a.Name()] = a
}

func (r *ProviderRegistry) Get(name string) (ProviderAdapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered provider names in sorted order.
func (r *ProviderRegistry) Names() []string {
	return slices.Sorted(maps.Keys(r.adapters))
}
