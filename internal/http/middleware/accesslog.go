package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// AccessLog emits one structured record per request with the bound
// correlation id.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			trace.Logger(r.Context(), logger).Info("http request",
				zap.String("operation", "http_request"),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("http_status", recorder.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
