package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

func testRegistry() *StaticRegistry {
	return NewStaticRegistry(
		Tenant{ID: "t1", Name: "Tenant One", TicketingBaseURL: "https://desk.t1.example", TicketingAuthToken: "tok-1", Active: true},
		Tenant{ID: "t-inactive", Name: "Disabled", Active: false},
	)
}

func TestBindRejectsEmptyTenant(t *testing.T) {
	guard := NewGuard(testRegistry())
	if _, err := guard.Bind(context.Background(), "   "); !errors.Is(err, domain.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant, got %v", err)
	}
}

func TestBindRejectsUnregisteredTenant(t *testing.T) {
	guard := NewGuard(testRegistry())
	if _, err := guard.Bind(context.Background(), "nope"); !errors.Is(err, domain.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant, got %v", err)
	}
}

func TestBindRejectsInactiveTenant(t *testing.T) {
	guard := NewGuard(testRegistry())
	if _, err := guard.Bind(context.Background(), "t-inactive"); !errors.Is(err, domain.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant for inactive tenant, got %v", err)
	}
}

func TestBindReturnsLiveScope(t *testing.T) {
	guard := NewGuard(testRegistry())
	scope, err := guard.Bind(context.Background(), "t1")
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if !scope.Bound() {
		t.Fatalf("expected bound scope")
	}
	if scope.TenantID() != "t1" {
		t.Fatalf("unexpected tenant id %q", scope.TenantID())
	}
	if scope.Tenant().TicketingAuthToken != "tok-1" {
		t.Fatalf("expected tenant credentials on scope")
	}
}

func TestReleaseIsIdempotentAndUnbinds(t *testing.T) {
	guard := NewGuard(testRegistry())
	scope, err := guard.Bind(context.Background(), "t1")
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	scope.Release()
	scope.Release()

	if scope.Bound() {
		t.Fatalf("expected released scope to be unbound")
	}
}

func TestZeroScopeIsUnbound(t *testing.T) {
	var scope Scope
	if scope.Bound() {
		t.Fatalf("zero scope must never count as bound")
	}
}

type failingRegistry struct{}

func (failingRegistry) Lookup(context.Context, string) (Tenant, error) {
	return Tenant{}, domain.ErrRegistryUnavailable
}

func TestBindSurfacesRegistryOutage(t *testing.T) {
	guard := NewGuard(failingRegistry{})
	if _, err := guard.Bind(context.Background(), "t1"); !errors.Is(err, domain.ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
}
