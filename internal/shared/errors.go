package shared

import "errors"

var (
	// ErrNotFound indicates a referenced user, role, location or project is missing.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation or a guarded deletion.
	ErrConflict = errors.New("conflict")
	// ErrReferentialIntegrity indicates related records disagree, such as a
	// project that does not belong to the assignment's location.
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
