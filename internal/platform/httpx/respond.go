// Package httpx provides JSON request/response helpers shared by all
// API handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body returned on every failure path. Missing
// names the permissions a 403 lacked; Fields collects per-field validation
// messages for a 400.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Missing []string          `json:"missing,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Message sends a short status message body.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

// Error sends an error body with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// ErrorMissing sends a 403-style error naming the missing permissions.
func ErrorMissing(w http.ResponseWriter, status int, message string, missing []string) {
	JSON(w, status, ErrorResponse{Error: message, Missing: missing})
}

// ErrorFields sends a validation error collecting every failed field.
func ErrorFields(w http.ResponseWriter, message string, fields map[string]string) {
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Fields: fields})
}

// DecodeJSON decodes the request body into target. Unknown fields are
// dropped rather than rejected.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
