package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hdcopilot/ticket-enrich-back/internal/http/handlers"
	"github.com/hdcopilot/ticket-enrich-back/internal/http/middleware"
	"github.com/hdcopilot/ticket-enrich-back/internal/telemetry"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *zap.Logger
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/v1/webhooks/tickets", deps.API.TicketWebhook)
	mux.HandleFunc("/v1/outcomes/", deps.API.OutcomeStatus)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.AccessLog(deps.Logger)(handler)
	handler = middleware.Correlation(handler)

	return handler
}
