package trace

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// correlationKey is an unexported type for context keys within this package.
type correlationKey struct{}

// NewCorrelationID mints a fresh random 128-bit id in UUIDv4 textual form.
// Minted exactly once at the webhook boundary and never regenerated
// mid-flight.
func NewCorrelationID() string {
	return uuid.NewString()
}

// CorrelationID fetches the correlation id from the context if present.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(correlationKey{}).(string); ok {
		return value
	}
	return ""
}

// WithCorrelation binds the correlation id onto the context. Sub-operations
// derived from the returned context inherit the id unless explicitly
// rebound.
func WithCorrelation(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// Ensure guarantees a correlation id on the context, minting one when
// missing. Caller-supplied ids (a retried webhook delivery reusing the
// original) pass through untouched.
func Ensure(ctx context.Context) (context.Context, string) {
	id := CorrelationID(ctx)
	if id == "" {
		id = NewCorrelationID()
	}
	return WithCorrelation(ctx, id), id
}

// Logger returns the base logger with the context's correlation id bound, so
// every record emitted inside the scope carries correlation_id without the
// caller re-specifying it.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	id := CorrelationID(ctx)
	if id == "" {
		return base
	}
	return base.With(zap.String("correlation_id", id))
}
