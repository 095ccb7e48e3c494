package roles

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nexus-iot/nexus/internal/shared"
)

// ValidationError lists invalid fields of a role mutation.
type ValidationError struct {
	Fields map[string]string
	// duplicate marks a name clash, which is also a conflict.
	duplicate bool
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "roles: " + strings.Join(parts, "; ")
}

// FieldErrors exposes per-field messages to HTTP responses.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

// Is matches shared.ErrValidation, and shared.ErrConflict for duplicate names.
func (e *ValidationError) Is(target error) bool {
	return target == shared.ErrValidation || (e.duplicate && target == shared.ErrConflict)
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func duplicateNameError(name string) *ValidationError {
	return &ValidationError{
		Fields:    map[string]string{"name": fmt.Sprintf("role with name %q already exists", name)},
		duplicate: true,
	}
}

func validateInput(v *validator.Validate, in RoleInput) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[key] = "is required"
		case "max":
			fields[key] = fmt.Sprintf("must be at most %s characters", fe.Param())
		default:
			fields[key] = fe.Error()
		}
	}
	return &ValidationError{Fields: fields}
}
