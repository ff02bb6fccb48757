// Package apperr defines the error kinds surfaced to API callers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated covers missing, malformed, unknown, or expired bearer credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is a failed login. It is reported like ErrUnauthenticated.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotFound           = errors.New("not found")
	// ErrConflict is a uniqueness violation on a user name, role name, or right tuple.
	ErrConflict = errors.New("conflict")
	// ErrCorruptCredential is a stored password digest that cannot be parsed.
	ErrCorruptCredential = errors.New("corrupt credential")
	ErrInvalidInput      = errors.New("invalid input")
)

// Status maps an error to the HTTP status returned to the client.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
