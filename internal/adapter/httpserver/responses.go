// Package httpserver contains the HTTP handlers and middleware of the
// assessment API. It is the only layer that converts domain sentinel errors
// to status codes; everything below it treats errors as values.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// FieldError is one per-field validation failure in the response envelope.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeFieldErrors reports validator failures with per-field messages.
func writeFieldErrors(w http.ResponseWriter, errs []FieldError) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Error:   domain.ErrValidation.Error(),
		Errors:  errs,
	})
}

// writeError maps a domain sentinel to its status code. Session expiry gets a
// marker in the payload so clients can distinguish it from a bad token.
func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	env := envelope{Success: false, Error: err.Error()}
	if errors.Is(err, domain.ErrSessionExpired) {
		env.Data = map[string]bool{"sessionExpired": true}
	}
	writeJSON(w, statusFor(err), env)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthMissing),
		errors.Is(err, domain.ErrAuthInvalid),
		errors.Is(err, domain.ErrSessionInvalid),
		errors.Is(err, domain.ErrSessionNotInProgress),
		errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrLLMBadJSON):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrLLMUnavailable),
		errors.Is(err, domain.ErrLLMRateLimited),
		errors.Is(err, domain.ErrSandboxUnavailable),
		errors.Is(err, domain.ErrSandboxTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
