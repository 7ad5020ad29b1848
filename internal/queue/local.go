package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

// LocalQueue is a channel-backed fallback used when Redis is not configured.
// FIFO per instance; a full buffer is reported as queue unavailability
// rather than blocking the webhook caller. Ack is a no-op here, so the
// at-least-once redelivery window only exists on the Streams transport.
type LocalQueue struct {
	ch chan domain.JobEnvelope
}

func NewLocalQueue(bufferSize int) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	return &LocalQueue{ch: make(chan domain.JobEnvelope, bufferSize)}
}

func (q *LocalQueue) Enqueue(ctx context.Context, envelope domain.JobEnvelope) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, ctx.Err())
	case q.ch <- envelope:
		return nil
	default:
		return fmt.Errorf("%w: local buffer full", domain.ErrQueueUnavailable)
	}
}

func (q *LocalQueue) Dequeue(ctx context.Context, timeout time.Duration) (Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	case <-timer.C:
		return Delivery{}, domain.ErrNoWork
	case envelope := <-q.ch:
		return Delivery{
			Envelope: envelope,
			Ack:      func(context.Context) error { return nil },
		}, nil
	}
}

// Depth reports buffered envelopes, used by telemetry polling.
func (q *LocalQueue) Depth() int {
	return len(q.ch)
}
