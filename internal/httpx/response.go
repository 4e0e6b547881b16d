// Package httpx holds the JSON response helpers and HTTP middleware shared
// by every bookworm service.
package httpx

import (
	"encoding/json"
	"net/http"

	"bookworm/internal/validation"
)

// ErrorResponse is the error envelope of every service.
// Error carries the underlying cause on server errors only.
type ErrorResponse struct {
	Message string                  `json:"message"`
	Error   string                  `json:"error,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// DecodeJSON reads the request body into dst. On failure it writes a 400
// envelope and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// WriteError writes a client error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Message: message})
}

// WriteValidationError writes a 400 envelope with field-level detail.
func WriteValidationError(w http.ResponseWriter, message string, errs validation.Errors) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Message: message, Errors: errs})
}

// WriteServerError writes a 500 envelope that attaches the underlying error.
func WriteServerError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	WriteJSON(w, http.StatusInternalServerError, resp)
}
