package middleware

import (
	"net/http"

	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

const correlationHeader = "X-Correlation-Id"

// Correlation binds a correlation id onto every request context. A
// caller-supplied header is honored (retried webhook deliveries resend the
// original id); otherwise one is minted here, the system's external entry
// point.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := trace.WithCorrelation(r.Context(), r.Header.Get(correlationHeader))
		ctx, id := trace.Ensure(ctx)
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
