package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/service"
	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

type ticketWebhookRequest struct {
	TenantID string          `json:"tenant_id"`
	TicketID string          `json:"ticket_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// TicketWebhook is the pipeline's external entry point. The boundary
// contract: reject before enqueue when the tenant fails validation,
// otherwise mint (or reuse) the correlation id, build the envelope, and
// enqueue. Queue failure is the webhook caller's failure.
func (api *API) TicketWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request ticketWebhookRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed webhook payload")
		return
	}

	tenantID := strings.TrimSpace(request.TenantID)
	ticketID := strings.TrimSpace(request.TicketID)
	if tenantID == "" || len(tenantID) > 64 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if ticketID == "" || len(ticketID) > 128 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ticket_id is required")
		return
	}

	envelope, err := api.intake.Submit(r.Context(), service.WebhookSubmission{
		TenantID:      tenantID,
		TicketID:      ticketID,
		CorrelationID: trace.CorrelationID(r.Context()),
		Payload:       request.Payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownTenant):
			writeError(w, r, http.StatusForbidden, "unknown_tenant", "tenant is not registered")
		case errors.Is(err, domain.ErrRegistryUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "registry_unavailable", "tenant registry is unavailable")
		case errors.Is(err, domain.ErrQueueUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "queue_unavailable", "enhancement queue is unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to accept webhook")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"correlation_id": envelope.CorrelationID,
		"ticket_id":      envelope.TicketID,
		"status":         domain.OutcomeQueued,
	})
}
