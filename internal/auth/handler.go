package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/platform/httpx"
	"github.com/nexus-iot/nexus/internal/rbac"
)

// Handler exposes the caller's identity and permissions.
type Handler struct{}

// NewHandler builds Handler instance.
func NewHandler() *Handler {
	return &Handler{}
}

// MountRoutes registers /me routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuthenticated)
		r.Get("/me", h.me)
		r.Get("/me/permissions", h.permissions)
	})
}

type meResponse struct {
	UserID    uuid.UUID         `json:"userId"`
	TenantID  uuid.NullUUID     `json:"tenantId"`
	Email     string            `json:"email"`
	Authority rbac.Authority    `json:"authority"`
	RoleIDs   []uuid.UUID       `json:"roleIds"`
	Grants    []rbac.Permission `json:"permissions"`
}

// ResourceAccess drives menu visibility for one resource.
type ResourceAccess struct {
	Visible       bool     `json:"visible"`
	AllOperations bool     `json:"allOperations"`
	Operations    []string `json:"operations"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	roleIDs := p.RoleIDs
	if roleIDs == nil {
		roleIDs = []uuid.UUID{}
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		UserID:    p.UserID,
		TenantID:  p.TenantID,
		Email:     p.Email,
		Authority: p.Authority,
		RoleIDs:   roleIDs,
		Grants:    p.Permissions().Sorted(),
	})
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, AccessMap(p.Permissions()))
}

// AccessMap reports, for every concrete resource, whether it should be shown
// and which operations are granted on it.
func AccessMap(perms rbac.PermissionSet) map[string]ResourceAccess {
	out := make(map[string]ResourceAccess)
	for _, name := range rbac.ListResources() {
		resource := rbac.Resource(name)
		if resource == rbac.ResourceAll {
			continue
		}
		access := ResourceAccess{
			Visible:       rbac.HasAnyPermission(perms, resource),
			AllOperations: rbac.HasAllOperations(perms, resource),
			Operations:    []string{},
		}
		for _, op := range rbac.ListOperations() {
			operation := rbac.Operation(op)
			if operation == rbac.OperationAll {
				continue
			}
			if rbac.Authorize(perms, resource, operation) {
				access.Operations = append(access.Operations, op)
			}
		}
		out[name] = access
	}
	return out
}
