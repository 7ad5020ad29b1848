package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/queue"
	"github.com/hdcopilot/ticket-enrich-back/internal/repository"
	"github.com/hdcopilot/ticket-enrich-back/internal/telemetry"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

// WebhookSubmission is the inbound ticket-system event at the pipeline
// boundary. CorrelationID is normally empty; a retried webhook delivery may
// resupply the original id.
type WebhookSubmission struct {
	TenantID      string
	TicketID      string
	CorrelationID string
	Payload       json.RawMessage
}

// IntakeService owns the webhook boundary contract: validate the tenant
// before anything else, mint the correlation id exactly once, persist the
// queued outcome, then enqueue. A queue transport failure is the caller's
// request failure, never a silent drop.
type IntakeService struct {
	guard    *tenant.Guard
	repo     repository.OutcomesRepository
	producer queue.Producer
	logger   *zap.Logger
}

func NewIntakeService(
	guard *tenant.Guard,
	repo repository.OutcomesRepository,
	producer queue.Producer,
	logger *zap.Logger,
) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{guard: guard, repo: repo, producer: producer, logger: logger}
}

func (s *IntakeService) Submit(ctx context.Context, submission WebhookSubmission) (domain.JobEnvelope, error) {
	scope, err := s.guard.Bind(ctx, submission.TenantID)
	if err != nil {
		telemetry.JobsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return domain.JobEnvelope{}, err
	}
	defer scope.Release()

	correlationID := submission.CorrelationID
	if correlationID == "" {
		correlationID = trace.NewCorrelationID()
	}
	ctx = trace.WithCorrelation(ctx, correlationID)
	logger := trace.Logger(ctx, s.logger).With(
		zap.String("tenant_id", scope.TenantID()),
		zap.String("ticket_id", submission.TicketID),
		zap.String("operation", "webhook_intake"),
	)

	now := time.Now().UTC()
	envelope := domain.JobEnvelope{
		TenantID:      scope.TenantID(),
		TicketID:      submission.TicketID,
		CorrelationID: correlationID,
		CreatedAt:     now,
		Payload:       submission.Payload,
		AttemptCount:  0,
	}

	err = s.repo.RecordQueued(ctx, scope, domain.OutcomeRecord{
		TicketID:      envelope.TicketID,
		CorrelationID: correlationID,
		StartedAt:     now,
	})
	if err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("record queued outcome: %w", err)
	}

	if err := s.producer.Enqueue(ctx, envelope); err != nil {
		logger.Error("enqueue failed",
			zap.String("status", "rejected"),
			zap.Error(err),
		)
		telemetry.JobsRejected.WithLabelValues("queue_unavailable").Inc()
		return domain.JobEnvelope{}, err
	}

	telemetry.JobsEnqueued.Inc()
	logger.Info("envelope enqueued", zap.String("status", string(domain.OutcomeQueued)))
	return envelope, nil
}

// GetOutcome is the tenant-scoped status lookup; the guard runs on every
// call so an unknown tenant can never read anything.
func (s *IntakeService) GetOutcome(ctx context.Context, tenantID, correlationID string) (domain.OutcomeRecord, error) {
	scope, err := s.guard.Bind(ctx, tenantID)
	if err != nil {
		return domain.OutcomeRecord{}, err
	}
	defer scope.Release()
	return s.repo.GetOutcome(ctx, scope, correlationID)
}

func (s *IntakeService) ListOutcomes(ctx context.Context, tenantID string, filter domain.OutcomeListFilter) ([]domain.OutcomeRecord, int, error) {
	scope, err := s.guard.Bind(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	defer scope.Release()
	return s.repo.ListOutcomes(ctx, scope, filter)
}

func rejectionReason(err error) string {
	if errors.Is(err, domain.ErrRegistryUnavailable) {
		return "registry_unavailable"
	}
	return "unknown_tenant"
}
