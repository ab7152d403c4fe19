package httpx

import (
	"errors"
	"net/http"

	"github.com/bugtrail/bugtrail/internal/shared"
)

// RespondError maps domain errors onto the HTTP error contract. Unexpected
// errors become a generic 500 so internal detail never leaks to the caller.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, shared.ErrDuplicate):
		Error(w, http.StatusConflict, "duplicate entry")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Error(w, http.StatusConflict, "request already processed")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "invalid credentials")
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
