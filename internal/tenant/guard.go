package tenant

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

// Scope is the proof that a tenant id was validated against the registry.
// Store and gateway calls take it explicitly; there is no ambient global to
// leak between reused goroutines. The zero Scope is unbound and is rejected
// by everything that requires one.
type Scope struct {
	tenant   Tenant
	boundAt  time.Time
	released *atomic.Bool
}

func (s Scope) TenantID() string { return s.tenant.ID }
func (s Scope) Tenant() Tenant   { return s.tenant }
func (s Scope) BoundAt() time.Time {
	return s.boundAt
}

// Bound reports whether the scope came from a successful Bind and has not
// been released.
func (s Scope) Bound() bool {
	return s.tenant.ID != "" && s.released != nil && !s.released.Load()
}

// Release marks the scope unusable. Idempotent; callers defer it on every
// exit path so a reused worker goroutine never carries a stale scope.
func (s Scope) Release() {
	if s.released != nil {
		s.released.Store(true)
	}
}

// Guard is the single enforcement point that turns a raw tenant id into a
// Scope. Every read and write in the pipeline passes through here first,
// which is what makes the isolation guarantee auditable.
type Guard struct {
	registry Registry
}

func NewGuard(registry Registry) *Guard {
	return &Guard{registry: registry}
}

// Bind validates the tenant id against the registry and returns a live
// Scope. Empty and unregistered ids fail with ErrUnknownTenant; a registry
// outage fails with ErrRegistryUnavailable, never a silent pass.
func (g *Guard) Bind(ctx context.Context, tenantID string) (Scope, error) {
	normalized := normalizeTenantID(tenantID)
	if normalized == "" {
		return Scope{}, domain.ErrUnknownTenant
	}

	t, err := g.registry.Lookup(ctx, normalized)
	if err != nil {
		return Scope{}, err
	}

	return Scope{
		tenant:   t,
		boundAt:  time.Now().UTC(),
		released: &atomic.Bool{},
	}, nil
}
