// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Problem types understood by clients. The two guard signals are part of the public contract.
const (
	TypeUnauthenticated = "UNAUTHENTICATED"
	TypeForbidden       = "FORBIDDEN"
	TypeConflict        = "CONFLICT"
	TypeNotFound        = "NOT_FOUND"
	TypeValidation      = "VALIDATION"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, TypeNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, TypeConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, TypeValidation, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, TypeForbidden, "Forbidden", "")
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, TypeUnauthenticated, "Unauthorized", "")
	default:
		Problem(w, http.StatusInternalServerError, "", "Internal Error", "")
	}
}
