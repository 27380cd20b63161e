package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/txn2/budget-data-gateway/pkg/query"
)

// ErrEventsDisabled is returned by Events when no event store is configured.
var ErrEventsDisabled = errors.New("session event history is not enabled")

// errorResponse is the body of every failed facade request.
type errorResponse struct {
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"session \"abc\" expired or not found"`
}

// StatusFor maps the error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrConfig), errors.Is(err, query.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, query.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, query.ErrSessionExpired), errors.Is(err, ErrEventsDisabled):
		return http.StatusNotFound
	case errors.Is(err, query.ErrQuery):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope with the status mapped from err.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResponse{Error: true, Message: err.Error()})
}

// writeMessage writes the error envelope with an explicit status.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: true, Message: msg})
}
