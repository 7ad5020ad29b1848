package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued    = prometheus.NewCounter(prometheus.CounterOpts{Name: "enrich_jobs_enqueued_total", Help: "Envelopes accepted at the webhook boundary"})
	JobsRejected    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "enrich_jobs_rejected_total", Help: "Webhook submissions rejected before enqueue"}, []string{"reason"})
	JobsSucceeded   = prometheus.NewCounter(prometheus.CounterOpts{Name: "enrich_jobs_succeeded_total", Help: "Jobs that reached terminal success"})
	JobsFailed      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "enrich_jobs_failed_total", Help: "Jobs that reached terminal failure"}, []string{"error_type"})
	JobsRedelivered = prometheus.NewCounter(prometheus.CounterOpts{Name: "enrich_jobs_redelivered_total", Help: "Envelopes skipped because their outcome was already terminal"})
	GatewayAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "enrich_gateway_attempts_total", Help: "Outbound ticketing API attempts by outcome class"}, []string{"outcome"})
	JobsInFlight    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "enrich_jobs_inflight", Help: "Jobs currently being processed"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsRejected,
			JobsSucceeded,
			JobsFailed,
			JobsRedelivered,
			GatewayAttempts,
			JobsInFlight,
		)
	})
	return promhttp.Handler()
}
