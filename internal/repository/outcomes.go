package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyTerminal reports that the record reached success or failure
	// earlier; redelivered envelopes hit this and are acked without work.
	ErrAlreadyTerminal = errors.New("outcome already terminal")
)

// OutcomesRepository persists one OutcomeRecord per job envelope, keyed by
// correlation id. Every operation requires a bound tenant scope and is
// rejected with domain.ErrNoTenantContext otherwise; rows read or written
// always carry the scope's tenant, enforced here rather than by caller
// discipline.
type OutcomesRepository interface {
	RecordQueued(ctx context.Context, scope tenant.Scope, record domain.OutcomeRecord) error
	RecordStarted(ctx context.Context, scope tenant.Scope, record domain.OutcomeRecord) error
	RecordTerminal(ctx context.Context, scope tenant.Scope, record domain.OutcomeRecord) error
	GetOutcome(ctx context.Context, scope tenant.Scope, correlationID string) (domain.OutcomeRecord, error)
	ListOutcomes(ctx context.Context, scope tenant.Scope, filter domain.OutcomeListFilter) ([]domain.OutcomeRecord, int, error)
}

// guardRecord is the single predicate-injection point for writes: no scope,
// no write; a caller-supplied tenant that disagrees with the scope is a bug.
func guardRecord(scope tenant.Scope, record *domain.OutcomeRecord) error {
	if !scope.Bound() {
		return domain.ErrNoTenantContext
	}
	if record.TenantID == "" {
		record.TenantID = scope.TenantID()
	}
	if record.TenantID != scope.TenantID() {
		return domain.ErrTenantMismatch
	}
	return nil
}

// MemoryOutcomesRepository keeps records in memory for local development and
// tests.
type MemoryOutcomesRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.OutcomeRecord
}

func NewMemoryOutcomesRepository() *MemoryOutcomesRepository {
	return &MemoryOutcomesRepository{records: make(map[string]*domain.OutcomeRecord)}
}

func (r *MemoryOutcomesRepository) RecordQueued(_ context.Context, scope tenant.Scope, record domain.OutcomeRecord) error {
	if err := guardRecord(scope, &record); err != nil {
		return err
	}
	record.Status = domain.OutcomeQueued

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.CorrelationID]; exists {
		return nil
	}
	r.records[record.CorrelationID] = cloneRecord(&record)
	return nil
}

func (r *MemoryOutcomesRepository) RecordStarted(_ context.Context, scope tenant.Scope, record domain.OutcomeRecord) error {
	if err := guardRecord(scope, &record); err != nil {
		return err
	}
	record.Status = domain.OutcomeStarted

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.CorrelationID]
	if ok {
		if existing.TenantID != scope.TenantID() {
			return domain.ErrTenantMismatch
		}
		if existing.Status.Terminal() {
			return ErrAlreadyTerminal
		}
		existing.Status = domain.OutcomeStarted
		existing.StartedAt = record.StartedAt
		return nil
	}
	r.records[record.CorrelationID] = cloneRecord(&record)
	return nil
}

func (r *MemoryOutcomesRepository) RecordTerminal(_ context.Context, scope tenant.Scope, record domain.OutcomeRecord) error {
	if err := guardRecord(scope, &record); err != nil {
		return err
	}
	if !record.Status.Terminal() {
		return errors.New("terminal write requires success or failure status")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.CorrelationID]
	if !ok {
		return ErrNotFound
	}
	if existing.TenantID != scope.TenantID() {
		return ErrNotFound
	}
	// Redelivery after a terminal transition is a no-op.
	if existing.Status.Terminal() {
		return nil
	}

	existing.Status = record.Status
	existing.CompletedAt = record.CompletedAt
	existing.DurationMS = record.DurationMS
	existing.ErrorType = record.ErrorType
	existing.ErrorMessage = record.ErrorMessage
	return nil
}

func (r *MemoryOutcomesRepository) GetOutcome(_ context.Context, scope tenant.Scope, correlationID string) (domain.OutcomeRecord, error) {
	if !scope.Bound() {
		return domain.OutcomeRecord{}, domain.ErrNoTenantContext
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[correlationID]
	if !ok || record.TenantID != scope.TenantID() {
		return domain.OutcomeRecord{}, ErrNotFound
	}
	return *cloneRecord(record), nil
}

func (r *MemoryOutcomesRepository) ListOutcomes(_ context.Context, scope tenant.Scope, filter domain.OutcomeListFilter) ([]domain.OutcomeRecord, int, error) {
	if !scope.Bound() {
		return nil, 0, domain.ErrNoTenantContext
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.OutcomeRecord, 0)
	for _, record := range r.records {
		if record.TenantID != scope.TenantID() {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.TicketID != "" && record.TicketID != filter.TicketID {
			continue
		}
		if filter.From != nil && record.StartedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && record.StartedAt.After(*filter.To) {
			continue
		}
		items = append(items, *cloneRecord(record))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].StartedAt.After(items[j].StartedAt)
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.OutcomeRecord{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func cloneRecord(record *domain.OutcomeRecord) *domain.OutcomeRecord {
	if record == nil {
		return nil
	}
	clone := *record
	return &clone
}
