package users

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/platform/httpx"
	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// Handler manages user role assignment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Require(rbac.ResourceUser, rbac.OperationRead)))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Require(rbac.ResourceUser, rbac.OperationWrite)))
		r.Put("/{id}/roles/{roleID}", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.unassignRole)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if !p.TenantID.Valid {
		httpx.JSON(w, http.StatusOK, []User{})
		return
	}
	users, err := h.service.ListUsers(r.Context(), p.TenantID.UUID)
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("users: role id: %w", shared.ErrValidation))
		return
	}
	if err := h.service.AssignRole(r.Context(), u.ID, roleID); err != nil {
		h.fail(w, r, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("users: role id: %w", shared.ErrValidation))
		return
	}
	if err := h.service.UnassignRole(r.Context(), u.ID, roleID); err != nil {
		h.fail(w, r, "unassign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadUser fetches the {id} user, hiding users of other tenants.
func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("users: id: %w", shared.ErrValidation))
		return User{}, false
	}
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err)
		return User{}, false
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	if p.Authority != rbac.AuthoritySysAdmin && u.TenantID != p.TenantID {
		httpx.RespondError(w, fmt.Errorf("users: user %s: %w", id, shared.ErrNotFound))
		return User{}, false
	}
	return u, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.WarnContext(r.Context(), op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
