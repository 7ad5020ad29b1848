package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/enrich"
	"github.com/hdcopilot/ticket-enrich-back/internal/gateway"
	"github.com/hdcopilot/ticket-enrich-back/internal/policy"
	"github.com/hdcopilot/ticket-enrich-back/internal/queue"
	"github.com/hdcopilot/ticket-enrich-back/internal/repository"
	"github.com/hdcopilot/ticket-enrich-back/internal/telemetry"
	"github.com/hdcopilot/ticket-enrich-back/internal/tenant"
	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

const errorTypeEnrichment = "enrichment"

type Config struct {
	WorkerID       string
	DequeueTimeout time.Duration
	// DrainGrace bounds how long an in-flight job may keep running after
	// shutdown is requested. Sized to one full gateway retry budget.
	DrainGrace time.Duration
}

// Processor runs the enhancement state machine for one worker goroutine:
// dequeue, bind tenant and correlation context, record start, enrich, post
// through the gateway, write the terminal outcome. A job's failure is
// recorded and isolated; it never crashes the loop or blocks other tenants.
type Processor struct {
	consumer queue.Consumer
	guard    *tenant.Guard
	repo     repository.OutcomesRepository
	enricher enrich.Enricher
	gateway  *gateway.Client
	logger   *zap.Logger
	cfg      Config
}

func NewProcessor(
	consumer queue.Consumer,
	guard *tenant.Guard,
	repo repository.OutcomesRepository,
	enricher enrich.Enricher,
	gw *gateway.Client,
	logger *zap.Logger,
	cfg Config,
) *Processor {
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 5 * time.Second
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		consumer: consumer,
		guard:    guard,
		repo:     repo,
		enricher: enricher,
		gateway:  gw,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run pulls work until the context is cancelled. Cancellation stops new
// dequeues; the job in flight finishes within the drain grace budget.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delivery, err := p.consumer.Dequeue(ctx, p.cfg.DequeueTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrNoWork) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn("dequeue failed, backing off",
				zap.String("worker_id", p.cfg.WorkerID),
				zap.Error(err),
			)
			if sleepErr := sleepContext(ctx, 2*time.Second); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		// In-flight work survives shutdown up to the grace budget so the
		// terminal write is never torn.
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DrainGrace)
		ack := p.process(jobCtx, delivery.Envelope)
		if ack {
			if ackErr := delivery.Ack(jobCtx); ackErr != nil {
				p.logger.Warn("ack failed, envelope will redeliver",
					zap.String("worker_id", p.cfg.WorkerID),
					zap.String("correlation_id", delivery.Envelope.CorrelationID),
					zap.Error(ackErr),
				)
			}
		}
		cancel()
	}
}

// process executes one envelope and reports whether it should be acked.
// False means the envelope stays pending and redelivers after the
// visibility window.
func (p *Processor) process(ctx context.Context, envelope domain.JobEnvelope) bool {
	ctx = trace.WithCorrelation(ctx, envelope.CorrelationID)
	logger := trace.Logger(ctx, p.logger).With(
		zap.String("tenant_id", envelope.TenantID),
		zap.String("ticket_id", envelope.TicketID),
		zap.String("worker_id", p.cfg.WorkerID),
		zap.String("operation", "job_process"),
	)

	scope, err := p.guard.Bind(ctx, envelope.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrRegistryUnavailable) {
			// Transient: leave the envelope pending for redelivery.
			logger.Warn("tenant bind failed, registry unavailable", zap.Error(err))
			return false
		}
		// A tenant that disappeared after enqueue is not retryable.
		logger.Error("tenant bind rejected, dropping envelope",
			zap.String("status", "rejected"),
			zap.Error(err),
		)
		return true
	}
	defer scope.Release()

	startedAt := time.Now().UTC()
	err = p.repo.RecordStarted(ctx, scope, domain.OutcomeRecord{
		TicketID:      envelope.TicketID,
		CorrelationID: envelope.CorrelationID,
		StartedAt:     startedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyTerminal) {
			// Redelivery after a terminal transition is acked without work.
			telemetry.JobsRedelivered.Inc()
			logger.Info("envelope already terminal, skipping",
				zap.String("status", "skipped"),
				zap.Int("attempt_number", envelope.AttemptCount),
			)
			return true
		}
		logger.Warn("start transition failed, envelope will redeliver", zap.Error(err))
		return false
	}

	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	logger.Info("job started",
		zap.String("status", string(domain.OutcomeStarted)),
		zap.Int("attempt_number", envelope.AttemptCount),
	)

	content, enrichErr := p.enricher.Enrich(ctx, envelope)
	if enrichErr != nil {
		p.recordFailure(ctx, scope, logger, envelope, startedAt, errorTypeEnrichment, enrichErr.Error())
		return true
	}

	outcome := p.gateway.PostNote(ctx, scope, envelope, content)
	telemetry.GatewayAttempts.WithLabelValues(string(outcome.Status)).Add(float64(outcome.Attempts))

	if !outcome.OK() {
		p.recordFailure(ctx, scope, logger, envelope, startedAt, outcome.ErrorType, outcome.Detail)
		return true
	}

	completedAt := time.Now().UTC()
	durationMS := completedAt.Sub(startedAt).Milliseconds()
	err = p.repo.RecordTerminal(ctx, scope, domain.OutcomeRecord{
		TicketID:      envelope.TicketID,
		CorrelationID: envelope.CorrelationID,
		Status:        domain.OutcomeSuccess,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		DurationMS:    durationMS,
	})
	if err != nil {
		logger.Warn("terminal write failed, envelope will redeliver", zap.Error(err))
		return false
	}

	telemetry.JobsSucceeded.Inc()
	logger.Info("job succeeded",
		zap.String("status", string(domain.OutcomeSuccess)),
		zap.Int64("duration_ms", durationMS),
		zap.Int("gateway_attempts", outcome.Attempts),
	)
	return true
}

// recordFailure writes the terminal failure row with a redacted diagnostic.
// Failures are terminal here: the envelope is acked and the worker moves on.
func (p *Processor) recordFailure(
	ctx context.Context,
	scope tenant.Scope,
	logger *zap.Logger,
	envelope domain.JobEnvelope,
	startedAt time.Time,
	errorType string,
	detail string,
) {
	completedAt := time.Now().UTC()
	durationMS := completedAt.Sub(startedAt).Milliseconds()

	err := p.repo.RecordTerminal(ctx, scope, domain.OutcomeRecord{
		TicketID:      envelope.TicketID,
		CorrelationID: envelope.CorrelationID,
		Status:        domain.OutcomeFailure,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		DurationMS:    durationMS,
		ErrorType:     errorType,
		ErrorMessage:  policy.RedactString(detail),
	})
	if err != nil {
		logger.Error("failure transition could not be written", zap.Error(err))
	}

	telemetry.JobsFailed.WithLabelValues(errorType).Inc()
	logger.Warn("job failed",
		zap.String("status", string(domain.OutcomeFailure)),
		zap.String("error_type", errorType),
		zap.Int64("duration_ms", durationMS),
	)
}

// Pool fans the processor loop out over N goroutines sharing one consumer.
type Pool struct {
	processors []*Processor
	logger     *zap.Logger
}

func NewPool(build func(workerID string) *Processor, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	processors := make([]*Processor, 0, size)
	for i := 0; i < size; i++ {
		processors = append(processors, build(workerID(i)))
	}
	return &Pool{processors: processors, logger: logger}
}

// Run blocks until the context is cancelled and every worker has drained.
func (p *Pool) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, processor := range p.processors {
		processor := processor
		group.Go(func() error {
			err := processor.Run(groupCtx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})
	}
	err := group.Wait()
	p.logger.Info("worker pool drained", zap.Int("workers", len(p.processors)))
	return err
}

func workerID(index int) string {
	return fmt.Sprintf("worker-%d", index)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
