package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hdcopilot/ticket-enrich-back/internal/service"
	"github.com/hdcopilot/ticket-enrich-back/internal/trace"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	intake *service.IntakeService
}

func NewAPI(intake *service.IntakeService) *API {
	return &API{intake: intake}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{CorrelationID: trace.CorrelationID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
