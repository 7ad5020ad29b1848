package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

// Tenant is one registered customer organization, carrying the outbound
// ticketing credentials used on its behalf.
type Tenant struct {
	ID                 string
	Name               string
	TicketingBaseURL   string
	TicketingAuthToken string
	Active             bool
}

// Registry resolves tenant ids against the authoritative tenant list.
type Registry interface {
	Lookup(ctx context.Context, tenantID string) (Tenant, error)
}

// StaticRegistry serves a fixed tenant set, used for local development and
// tests when no registry database is configured.
type StaticRegistry struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

func NewStaticRegistry(tenants ...Tenant) *StaticRegistry {
	registry := &StaticRegistry{tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		registry.tenants[t.ID] = t
	}
	return registry
}

func (r *StaticRegistry) Register(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

func (r *StaticRegistry) Lookup(_ context.Context, tenantID string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[tenantID]
	if !ok || !t.Active {
		return Tenant{}, domain.ErrUnknownTenant
	}
	return t, nil
}

// PostgresRegistry looks tenants up in the shared tenants table. The lookup
// is parameterized; tenant ids are attacker-controlled input and must never
// be concatenated into SQL.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) Lookup(ctx context.Context, tenantID string) (Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, ticketing_base_url, ticketing_auth_token, active
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &t.TicketingBaseURL, &t.TicketingAuthToken, &t.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, domain.ErrUnknownTenant
		}
		return Tenant{}, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	if !t.Active {
		return Tenant{}, domain.ErrUnknownTenant
	}
	return t, nil
}

func normalizeTenantID(tenantID string) string {
	return strings.TrimSpace(tenantID)
}
