// Package apperr holds the error taxonomy shared by the services and the
// HTTP layer. Concrete errors wrap one of the sentinels with %w so callers
// can classify them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrUnauthorized     = errors.New("insufficient permissions")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
)

// Validation returns an error that wraps ErrValidation with msg.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Unavailable wraps a backend failure as ErrStoreUnavailable, keeping the cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// OrphanedCredentialError reports a staff provisioning that failed after the
// credential was created. Err is the original failure; CleanupErr is set when
// the compensating deletion failed too.
type OrphanedCredentialError struct {
	CredentialID uuid.UUID
	Err          error
	CleanupErr   error
}

func (e *OrphanedCredentialError) Error() string {
	if e.CleanupErr != nil {
		return fmt.Sprintf("provision staff %s: %v (cleanup failed: %v)", e.CredentialID, e.Err, e.CleanupErr)
	}
	return fmt.Sprintf("provision staff %s: %v", e.CredentialID, e.Err)
}

func (e *OrphanedCredentialError) Unwrap() error { return e.Err }

// HTTPStatus maps an error onto the status code the handlers answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
