// Package common defines sentinel errors and small helpers shared by the
// repositories, services and the HTTP layer. Callers match errors with
// errors.Is.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation / uniqueness errors.
	ErrValidation     = errors.New("validation error")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrConflict       = errors.New("conflict")

	// Login fails with the same error whether the user is unknown or the
	// password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Trash errors.
	ErrNothingToDelete = errors.New("nothing to delete")

	// Federation errors.
	ErrNonceMissing  = errors.New("nonce not found in session")
	ErrNonceMismatch = errors.New("nonce mismatch")
	ErrProvider      = errors.New("identity provider error")
)
