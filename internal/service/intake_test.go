package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/queue"
	"github.com/hdcopilot/ticket-enrich-back/internal/repository"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
)

func newIntakeFixture(bufferSize int) (*IntakeService, *queue.LocalQueue) {
	registry := tenant.NewStaticRegistry(
		tenant.Tenant{ID: "acme", Name: "Acme", TicketingBaseURL: "https://desk.acme.example", TicketingAuthToken: "tok", Active: true},
		tenant.Tenant{ID: "globex", Name: "Globex", TicketingBaseURL: "https://desk.globex.example", TicketingAuthToken: "tok", Active: true},
	)
	q := queue.NewLocalQueue(bufferSize)
	intake := NewIntakeService(
		tenant.NewGuard(registry),
		repository.NewMemoryOutcomesRepository(),
		q,
		zap.NewNop(),
	)
	return intake, q
}

func TestSubmitRejectsUnknownTenantBeforeEnqueue(t *testing.T) {
	intake, q := newIntakeFixture(8)

	_, err := intake.Submit(context.Background(), WebhookSubmission{
		TenantID: "ghost",
		TicketID: "t-1",
	})
	if !errors.Is(err, domain.ErrUnknownTenant) {
		t.Fatalf("expected ErrUnknownTenant, got %v", err)
	}
	if q.Depth() != 0 {
		t.Fatalf("rejected submission must never reach the queue")
	}
}

func TestSubmitMintsCorrelationAndRecordsQueued(t *testing.T) {
	intake, q := newIntakeFixture(8)

	envelope, err := intake.Submit(context.Background(), WebhookSubmission{
		TenantID: "acme",
		TicketID: "t-9",
		Payload:  []byte(`{"subject":"laptop won't boot"}`),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if envelope.CorrelationID == "" {
		t.Fatalf("expected a minted correlation id")
	}
	if envelope.TenantID != "acme" || envelope.AttemptCount != 0 {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if q.Depth() != 1 {
		t.Fatalf("expected one queued envelope, got %d", q.Depth())
	}

	record, err := intake.GetOutcome(context.Background(), "acme", envelope.CorrelationID)
	if err != nil {
		t.Fatalf("outcome lookup failed: %v", err)
	}
	if record.Status != domain.OutcomeQueued {
		t.Fatalf("expected queued status, got %s", record.Status)
	}
}

func TestSubmitReusesCallerCorrelationID(t *testing.T) {
	intake, _ := newIntakeFixture(8)

	envelope, err := intake.Submit(context.Background(), WebhookSubmission{
		TenantID:      "acme",
		TicketID:      "t-9",
		CorrelationID: "corr-retry",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if envelope.CorrelationID != "corr-retry" {
		t.Fatalf("retried webhook delivery must keep its id, got %q", envelope.CorrelationID)
	}
}

func TestSubmitSurfacesQueueUnavailability(t *testing.T) {
	intake, _ := newIntakeFixture(1)

	if _, err := intake.Submit(context.Background(), WebhookSubmission{TenantID: "acme", TicketID: "t-1"}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	_, err := intake.Submit(context.Background(), WebhookSubmission{TenantID: "acme", TicketID: "t-2"})
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
}

func TestGetOutcomeIsTenantScoped(t *testing.T) {
	intake, _ := newIntakeFixture(8)

	envelope, err := intake.Submit(context.Background(), WebhookSubmission{TenantID: "acme", TicketID: "t-1"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := intake.GetOutcome(context.Background(), "globex", envelope.CorrelationID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cross-tenant lookup must report not found, got %v", err)
	}
	if _, err := intake.GetOutcome(context.Background(), "ghost", envelope.CorrelationID); !errors.Is(err, domain.ErrUnknownTenant) {
		t.Fatalf("unknown tenant lookup must be rejected, got %v", err)
	}
}

func TestListOutcomesScopedToTenant(t *testing.T) {
	intake, _ := newIntakeFixture(8)

	for _, ticket := range []string{"t-1", "t-2"} {
		if _, err := intake.Submit(context.Background(), WebhookSubmission{TenantID: "acme", TicketID: ticket}); err != nil {
			t.Fatalf("submit %s failed: %v", ticket, err)
		}
	}
	if _, err := intake.Submit(context.Background(), WebhookSubmission{TenantID: "globex", TicketID: "t-3"}); err != nil {
		t.Fatalf("submit globex failed: %v", err)
	}

	_, total, err := intake.ListOutcomes(context.Background(), "acme", domain.OutcomeListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 acme outcomes, got %d", total)
	}
}
