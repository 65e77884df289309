package httpx

import (
	"errors"
	"net/http"

	"github.com/balcao-pos/balcao/internal/shared"
)

// StatusFor maps a domain error to an HTTP status code.
// Business-rule violations surface as 409, state preconditions as 412;
// anything unrecognised is an infrastructure failure.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, shared.ErrNoActor):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Infrastructure errors never leak details; the caller may safely retry
// the whole operation since nothing partial survives a rollback.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		Problem(w, status, "Not Found", err.Error())
	case http.StatusBadRequest:
		Problem(w, status, "Validation Failed", err.Error())
	case http.StatusConflict:
		Problem(w, status, "Conflict", err.Error())
	case http.StatusPreconditionFailed:
		Problem(w, status, "Precondition Failed", err.Error())
	case http.StatusUnauthorized:
		Problem(w, status, "Unauthorized", err.Error())
	default:
		Problem(w, status, "Internal Error", "")
	}
}
