package rbac

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/shared"
)

// Enforcement errors.
var (
	// ErrAuthenticationRequired is returned when no principal is in context.
	ErrAuthenticationRequired = shared.ErrUnauthenticated
	// ErrPermissionDenied is returned when the principal lacks the grant.
	ErrPermissionDenied = shared.ErrForbidden
	// ErrMisconfigured is returned when a requirement cannot be parsed.
	ErrMisconfigured = shared.ErrMisconfigured
)

// DeniedError describes a permission denial.
type DeniedError struct {
	UserID    uuid.UUID
	Resource  Resource
	Operation Operation
	CallSite  string
	Message   string
}

func (e *DeniedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permission %s on %s denied", e.Operation, e.Resource)
}

func (e *DeniedError) Unwrap() error { return ErrPermissionDenied }

// ConfigError describes an unparsable requirement declared by a protected operation.
// It matches ErrMisconfigured only; Err is kept for the message and is not
// unwrapped, so the parse failure never reads as a caller validation error.
type ConfigError struct {
	Resource  string
	Operation string
	CallSite  string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rbac: invalid requirement %s/%s at %s: %v", e.Resource, e.Operation, e.CallSite, e.Err)
}

func (e *ConfigError) Unwrap() error { return ErrMisconfigured }
