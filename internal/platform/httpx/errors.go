// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/nexus-iot/nexus/internal/shared"
)

// FieldErrors is implemented by errors that carry per-field validation messages.
type FieldErrors interface {
	FieldErrors() map[string]string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrMisconfigured):
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.ErrMisconfigured.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		problemWithFields(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, shared.ErrValidation):
		problemWithFields(w, http.StatusBadRequest, "Validation Failed", err)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func problemWithFields(w http.ResponseWriter, status int, title string, err error) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		JSON(w, status, ProblemDetail{
			Title:  title,
			Status: status,
			Detail: err.Error(),
			Errors: fe.FieldErrors(),
		})
		return
	}
	Problem(w, status, title, err.Error())
}
