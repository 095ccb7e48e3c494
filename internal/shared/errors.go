package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request clashes with current state.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated indicates no authenticated principal is present.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden indicates the principal lacks a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrMisconfigured indicates a protected operation declares an invalid requirement.
	ErrMisconfigured = errors.New("invalid permission configuration")
)
