package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

type StreamsConfig struct {
	Addr       string
	Password   string
	DB         int
	Stream     string
	DLQStream  string
	Group      string
	Consumer   string
	Visibility time.Duration
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams with a
// consumer group. Entries stay pending until acked; pending entries idle
// longer than the visibility window are reclaimed and redelivered, which is
// where the at-least-once guarantee comes from.
type StreamsQueue struct {
	client     *redis.Client
	stream     string
	dlqStream  string
	group      string
	consumer   string
	visibility time.Duration
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "enrich_jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "enrich_jobs_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "enrich_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 90 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	q := &StreamsQueue{
		client:     client,
		stream:     cfg.Stream,
		dlqStream:  cfg.DLQStream,
		group:      cfg.Group,
		consumer:   cfg.Consumer,
		visibility: cfg.Visibility,
	}
	if err := q.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, envelope domain.JobEnvelope) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: envelopeValues(envelope),
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

func (q *StreamsQueue) Dequeue(ctx context.Context, timeout time.Duration) (Delivery, error) {
	if reclaimed, ok, err := q.reclaimStale(ctx); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	} else if ok {
		return reclaimed, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Delivery{}, domain.ErrNoWork
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Delivery{}, err
		}
		return Delivery{}, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	for _, stream := range streams {
		for _, item := range stream.Messages {
			return q.deliver(ctx, item, 0)
		}
	}
	return Delivery{}, domain.ErrNoWork
}

// reclaimStale takes over one pending entry whose consumer went quiet past
// the visibility window.
func (q *StreamsQueue) reclaimStale(ctx context.Context) (Delivery, bool, error) {
	messages, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.visibility,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Delivery{}, false, nil
		}
		return Delivery{}, false, err
	}
	if len(messages) == 0 {
		return Delivery{}, false, nil
	}

	delivery, err := q.deliver(ctx, messages[0], 1)
	if err != nil {
		return Delivery{}, false, nil
	}
	return delivery, true, nil
}

func (q *StreamsQueue) deliver(ctx context.Context, item redis.XMessage, extraAttempts int) (Delivery, error) {
	envelope, parseErr := parseStreamEnvelope(item)
	if parseErr != nil {
		_ = q.sendToDLQ(ctx, item, parseErr.Error())
		_ = q.ackAndDelete(ctx, item.ID)
		return Delivery{}, domain.ErrNoWork
	}
	envelope.AttemptCount += extraAttempts

	streamID := item.ID
	return Delivery{
		Envelope: envelope,
		Ack: func(ackCtx context.Context) error {
			return q.ackAndDelete(ackCtx, streamID)
		},
	}, nil
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) sendToDLQ(ctx context.Context, item redis.XMessage, errorMessage string) error {
	values := make(map[string]any, len(item.Values)+3)
	for key, value := range item.Values {
		values[key] = value
	}
	values["stream_id"] = item.ID
	values["error"] = errorMessage
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

func envelopeValues(envelope domain.JobEnvelope) map[string]any {
	return map[string]any{
		"tenant_id":      envelope.TenantID,
		"ticket_id":      envelope.TicketID,
		"correlation_id": envelope.CorrelationID,
		"created_at":     envelope.CreatedAt.Format(time.RFC3339Nano),
		"payload":        string(envelope.Payload),
		"attempt_count":  envelope.AttemptCount,
	}
}

func parseStreamEnvelope(item redis.XMessage) (domain.JobEnvelope, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	tenantID, err := getString("tenant_id")
	if err != nil {
		return domain.JobEnvelope{}, err
	}
	ticketID, err := getString("ticket_id")
	if err != nil {
		return domain.JobEnvelope{}, err
	}
	correlationID, err := getString("correlation_id")
	if err != nil {
		return domain.JobEnvelope{}, err
	}
	payload, err := getString("payload")
	if err != nil {
		return domain.JobEnvelope{}, err
	}

	createdAtString, err := getString("created_at")
	if err != nil {
		return domain.JobEnvelope{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtString)
	if err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("invalid created_at: %w", err)
	}

	attemptString, err := getString("attempt_count")
	if err != nil {
		return domain.JobEnvelope{}, err
	}
	attemptCount, err := strconv.Atoi(attemptString)
	if err != nil {
		return domain.JobEnvelope{}, fmt.Errorf("invalid attempt_count: %w", err)
	}

	return domain.JobEnvelope{
		TenantID:      tenantID,
		TicketID:      ticketID,
		CorrelationID: correlationID,
		CreatedAt:     createdAt,
		Payload:       []byte(payload),
		AttemptCount:  attemptCount,
	}, nil
}
