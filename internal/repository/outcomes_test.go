package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
)

func bindScope(t *testing.T, tenantID string) tenant.Scope {
	t.Helper()
	registry := tenant.NewStaticRegistry(
		tenant.Tenant{ID: "tenant-a", Name: "A", Active: true},
		tenant.Tenant{ID: "tenant-b", Name: "B", Active: true},
	)
	scope, err := tenant.NewGuard(registry).Bind(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("bind %s: %v", tenantID, err)
	}
	return scope
}

func seedQueued(t *testing.T, repo *MemoryOutcomesRepository, scope tenant.Scope, correlationID, ticketID string) {
	t.Helper()
	err := repo.RecordQueued(context.Background(), scope, domain.OutcomeRecord{
		TicketID:      ticketID,
		CorrelationID: correlationID,
		StartedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed queued %s: %v", correlationID, err)
	}
}

func TestWritesRequireBoundScope(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	var unbound tenant.Scope

	record := domain.OutcomeRecord{CorrelationID: "c1", StartedAt: time.Now().UTC()}
	if err := repo.RecordQueued(context.Background(), unbound, record); !errors.Is(err, domain.ErrNoTenantContext) {
		t.Fatalf("expected ErrNoTenantContext on queued write, got %v", err)
	}
	if err := repo.RecordStarted(context.Background(), unbound, record); !errors.Is(err, domain.ErrNoTenantContext) {
		t.Fatalf("expected ErrNoTenantContext on start write, got %v", err)
	}
	if _, err := repo.GetOutcome(context.Background(), unbound, "c1"); !errors.Is(err, domain.ErrNoTenantContext) {
		t.Fatalf("expected ErrNoTenantContext on read, got %v", err)
	}
	if _, _, err := repo.ListOutcomes(context.Background(), unbound, domain.OutcomeListFilter{}); !errors.Is(err, domain.ErrNoTenantContext) {
		t.Fatalf("expected ErrNoTenantContext on list, got %v", err)
	}
}

func TestWritesRejectTenantMismatch(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	scope := bindScope(t, "tenant-a")

	err := repo.RecordQueued(context.Background(), scope, domain.OutcomeRecord{
		TenantID:      "tenant-b",
		CorrelationID: "c1",
		StartedAt:     time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrTenantMismatch) {
		t.Fatalf("expected ErrTenantMismatch, got %v", err)
	}
}

func TestReadsAreIsolatedByTenant(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	scopeA := bindScope(t, "tenant-a")
	scopeB := bindScope(t, "tenant-b")

	seedQueued(t, repo, scopeA, "corr-a", "t-1")

	if _, err := repo.GetOutcome(context.Background(), scopeA, "corr-a"); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := repo.GetOutcome(context.Background(), scopeB, "corr-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant read must report not found, got %v", err)
	}

	items, total, err := repo.ListOutcomes(context.Background(), scopeB, domain.OutcomeListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("tenant-b must not see tenant-a records, got %d items", len(items))
	}
}

func TestStartedTransitionRejectedAfterTerminal(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	scope := bindScope(t, "tenant-a")
	seedQueued(t, repo, scope, "corr-1", "t-1")

	now := time.Now().UTC()
	err := repo.RecordTerminal(context.Background(), scope, domain.OutcomeRecord{
		CorrelationID: "corr-1",
		Status:        domain.OutcomeSuccess,
		StartedAt:     now,
		CompletedAt:   now,
	})
	if err != nil {
		t.Fatalf("terminal write failed: %v", err)
	}

	err = repo.RecordStarted(context.Background(), scope, domain.OutcomeRecord{
		CorrelationID: "corr-1",
		StartedAt:     now,
	})
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestTerminalWriteIsIdempotent(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	scope := bindScope(t, "tenant-a")
	seedQueued(t, repo, scope, "corr-1", "t-1")

	now := time.Now().UTC()
	success := domain.OutcomeRecord{
		CorrelationID: "corr-1",
		Status:        domain.OutcomeSuccess,
		StartedAt:     now,
		CompletedAt:   now,
		DurationMS:    120,
	}
	if err := repo.RecordTerminal(context.Background(), scope, success); err != nil {
		t.Fatalf("first terminal write failed: %v", err)
	}

	// A redelivered envelope writing failure later must not flip the record.
	failure := success
	failure.Status = domain.OutcomeFailure
	failure.ErrorType = "server_error"
	if err := repo.RecordTerminal(context.Background(), scope, failure); err != nil {
		t.Fatalf("repeat terminal write should be a no-op, got %v", err)
	}

	record, err := repo.GetOutcome(context.Background(), scope, "corr-1")
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if record.Status != domain.OutcomeSuccess {
		t.Fatalf("terminal status must not change after first write, got %s", record.Status)
	}
	if record.ErrorType != "" {
		t.Fatalf("expected no error type on success record, got %q", record.ErrorType)
	}
}

func TestQueuedWriteIsIdempotentPerCorrelation(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	scope := bindScope(t, "tenant-a")

	seedQueued(t, repo, scope, "corr-1", "t-1")
	seedQueued(t, repo, scope, "corr-1", "t-1")

	_, total, err := repo.ListOutcomes(context.Background(), scope, domain.OutcomeListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected one record per correlation id, got %d", total)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	repo := NewMemoryOutcomesRepository()
	scope := bindScope(t, "tenant-a")
	ctx := context.Background()

	base := time.Now().UTC()
	for i, corr := range []string{"c1", "c2", "c3"} {
		err := repo.RecordStarted(ctx, scope, domain.OutcomeRecord{
			TicketID:      "ticket-9",
			CorrelationID: corr,
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", corr, err)
		}
	}
	done := base.Add(3 * time.Minute)
	err := repo.RecordTerminal(ctx, scope, domain.OutcomeRecord{
		CorrelationID: "c2",
		Status:        domain.OutcomeFailure,
		StartedAt:     base.Add(time.Minute),
		CompletedAt:   done,
		ErrorType:     "timeout",
	})
	if err != nil {
		t.Fatalf("terminal seed: %v", err)
	}

	items, total, err := repo.ListOutcomes(ctx, scope, domain.OutcomeListFilter{Status: domain.OutcomeFailure})
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if total != 1 || items[0].CorrelationID != "c2" {
		t.Fatalf("expected only the failed record, got total=%d items=%v", total, items)
	}

	page, total, err := repo.ListOutcomes(ctx, scope, domain.OutcomeListFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("paged list failed: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("expected 1 item on page 2 of 3, got total=%d len=%d", total, len(page))
	}
}
