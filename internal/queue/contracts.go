package queue

import (
	"context"
	"time"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

// Producer submits job envelopes to a queue backend. Enqueue is synchronous
// from the caller's perspective and fails with domain.ErrQueueUnavailable on
// transport failure; the caller must surface that as request failure.
type Producer interface {
	Enqueue(ctx context.Context, envelope domain.JobEnvelope) error
}

// Delivery is one dequeued envelope plus the acknowledgement that removes it
// from the transport. An envelope that is never acked becomes re-visible to
// another worker after the visibility window (at-least-once delivery).
type Delivery struct {
	Envelope domain.JobEnvelope
	Ack      func(ctx context.Context) error
}

// Consumer pulls envelopes off the queue. Dequeue blocks up to the supplied
// timeout and returns domain.ErrNoWork when it elapses with nothing to do.
type Consumer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (Delivery, error)
}
