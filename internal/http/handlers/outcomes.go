package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
	"github.com/hdcopilot/ticket-enrich-back/internal/repository"
)

const tenantHeader = "X-Tenant-Id"

// OutcomeStatus looks up one outcome record by correlation id, scoped to the
// requesting tenant.
func (api *API) OutcomeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	correlationID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/outcomes/"))
	if correlationID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "correlation_id is required")
		return
	}
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if tenantID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", tenantHeader+" header is required")
		return
	}

	record, err := api.intake.GetOutcome(r.Context(), tenantID, correlationID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownTenant):
			writeError(w, r, http.StatusForbidden, "unknown_tenant", "tenant is not registered")
		case errors.Is(err, domain.ErrRegistryUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "registry_unavailable", "tenant registry is unavailable")
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "outcome not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load outcome")
		}
		return
	}

	response := map[string]any{
		"correlation_id": record.CorrelationID,
		"ticket_id":      record.TicketID,
		"status":         record.Status,
	}
	if record.Status.Terminal() {
		response["completed_at"] = record.CompletedAt
		response["duration_ms"] = record.DurationMS
	}
	if record.ErrorType != "" {
		response["error"] = map[string]any{
			"type":    record.ErrorType,
			"message": record.ErrorMessage,
		}
	}
	writeJSON(w, http.StatusOK, response)
}
