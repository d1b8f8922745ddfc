package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Hub errors.
var (
	// ErrSessionNotFound is returned by SendTo for an unknown session id.
	ErrSessionNotFound = errors.New("api: session not found")

	// ErrSendBufferFull is returned by SendTo when the session's queue is full.
	ErrSendBufferFull = errors.New("api: session send buffer full")
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeInternal    = "internal_error"
)

// statusForCode maps an error code to its HTTP status.
var statusForCode = map[string]int{
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeNotFound:    http.StatusNotFound,
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
	ErrCodeInternal:    http.StatusInternalServerError,
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, code, message string) {
	status, ok := statusForCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, ErrCodeInternal, message)
}
