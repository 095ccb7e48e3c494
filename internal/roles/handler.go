package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/platform/httpx"
	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// TenantJobs schedules tenant-wide role maintenance in the background.
type TenantJobs interface {
	EnqueueProvisionRoles(ctx context.Context, tenantID uuid.UUID) (string, error)
	EnqueuePurgeRoles(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// Handler exposes role administration over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	jobs    TenantJobs
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance. jobs may be nil, in which case tenant
// maintenance runs inline.
func NewHandler(logger *slog.Logger, service *Service, jobs TenantJobs, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, jobs: jobs, rbac: rbac}
}

// MountRoutes registers role routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(rbac.Require(rbac.ResourceRole, rbac.OperationRead)))
			r.Get("/", h.listRoles)
			r.Get("/system", h.listSystemRoles)
			r.Get("/resources", h.listResources)
			r.Get("/operations", h.listOperations)
			r.Get("/{id}", h.getRole)
			r.Get("/{id}/permissions", h.getPermissions)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(rbac.Require(rbac.ResourceRole, rbac.OperationCreate)))
			r.Post("/", h.createRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(rbac.Require(rbac.ResourceRole, rbac.OperationWrite)))
			r.Put("/{id}", h.updateRole)
			r.Put("/{id}/permissions", h.replacePermissions)
			r.Post("/{id}/permissions", h.addPermissions)
			r.Delete("/{id}/permissions", h.removePermissions)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.Require(rbac.Require(rbac.ResourceRole, rbac.OperationDelete).
				WithMessage("You don't have permission to delete roles")))
			r.Delete("/{id}", h.deleteRole)
		})
	})
	r.Route("/tenants/{tenantID}/roles", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.Require(rbac.ResourceTenant, rbac.OperationWrite))).Post("/provision", h.provisionTenant)
		r.With(h.rbac.Require(rbac.Require(rbac.ResourceTenant, rbac.OperationDelete))).Post("/purge", h.purgeTenant)
	})
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     int64  `json:"version"`
}

type permissionDTO struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
}

type permissionsRequest struct {
	Permissions []permissionDTO `json:"permissions"`
}

type jobResponse struct {
	TaskID string `json:"taskId,omitempty"`
	Roles  []Role `json:"roles,omitempty"`
	Purged *int   `json:"purged,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if !p.TenantID.Valid {
		httpx.JSON(w, http.StatusOK, shared.NewPageData[Role](nil, 0, shared.PageLink{}))
		return
	}
	page, err := h.service.ListRoles(r.Context(), p.TenantID.UUID, pageLinkFromQuery(r))
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) listSystemRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListSystemRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list system roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) listResources(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, rbac.ResourceOptions())
}

func (h *Handler) listOperations(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, rbac.OperationOptions())
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fieldError("body", err.Error()))
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), p.TenantID, req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	if h.readOnly(w, r, current) {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fieldError("body", err.Error()))
		return
	}
	role, err := h.service.UpdateRole(r.Context(), current.ID, req.Version, req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), role.ID); err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPermissions(w http.ResponseWriter, r *http.Request) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	grants, err := h.service.Grants(r.Context(), role.ID)
	if err != nil {
		h.fail(w, r, "get grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, "replace grants", h.service.ReplaceGrants)
}

func (h *Handler) addPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, "add grants", h.service.AddGrants)
}

func (h *Handler) removePermissions(w http.ResponseWriter, r *http.Request) {
	h.mutatePermissions(w, r, "remove grants", h.service.RemoveGrants)
}

func (h *Handler) mutatePermissions(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uuid.UUID, []rbac.Permission) error) {
	role, ok := h.loadRole(w, r)
	if !ok {
		return
	}
	if h.readOnly(w, r, role) {
		return
	}
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fieldError("body", err.Error()))
		return
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := fn(r.Context(), role.ID, perms); err != nil {
		h.fail(w, r, op, err)
		return
	}
	grants, err := h.service.Grants(r.Context(), role.ID)
	if err != nil {
		h.fail(w, r, "get grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) provisionTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseUUIDParam(w, r, "tenantID")
	if !ok || !h.tenantAllowed(w, r, tenantID, rbac.OperationWrite, false) {
		return
	}
	if h.jobs != nil {
		taskID, err := h.jobs.EnqueueProvisionRoles(r.Context(), tenantID)
		if err != nil {
			h.fail(w, r, "enqueue provision", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, jobResponse{TaskID: taskID})
		return
	}
	roles, err := h.service.CreateDefaultRoles(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, "provision roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobResponse{Roles: roles})
}

func (h *Handler) purgeTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := parseUUIDParam(w, r, "tenantID")
	if !ok || !h.tenantAllowed(w, r, tenantID, rbac.OperationDelete, true) {
		return
	}
	if h.jobs != nil {
		taskID, err := h.jobs.EnqueuePurgeRoles(r.Context(), tenantID)
		if err != nil {
			h.fail(w, r, "enqueue purge", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, jobResponse{TaskID: taskID})
		return
	}
	n, err := h.service.DeleteTenantRoles(r.Context(), tenantID)
	if err != nil {
		h.fail(w, r, "purge roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobResponse{Purged: &n})
}

// loadRole fetches the {id} role and hides roles of other tenants.
func (h *Handler) loadRole(w http.ResponseWriter, r *http.Request) (Role, bool) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return Role{}, false
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get role", err)
		return Role{}, false
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	if role.TenantID.Valid && p.Authority != rbac.AuthoritySysAdmin && role.TenantID != p.TenantID {
		httpx.RespondError(w, fmt.Errorf("roles: role %s: %w", id, shared.ErrNotFound))
		return Role{}, false
	}
	return role, true
}

// tenantAllowed limits tenant maintenance to system administrators and, unless
// sysAdminOnly, to administrators of the target tenant itself.
func (h *Handler) tenantAllowed(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID, op rbac.Operation, sysAdminOnly bool) bool {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if p.Authority == rbac.AuthoritySysAdmin {
		return true
	}
	if !sysAdminOnly && p.TenantID.Valid && p.TenantID.UUID == tenantID {
		return true
	}
	h.logger.WarnContext(r.Context(), "tenant maintenance rejected",
		slog.String("user_id", p.UserID.String()),
		slog.String("tenant_id", tenantID.String()),
		slog.String("operation", string(op)))
	msg := "You can only maintain roles of your own tenant"
	if sysAdminOnly {
		msg = "Only a system administrator can purge tenant roles"
	}
	httpx.RespondError(w, &rbac.DeniedError{
		UserID:    p.UserID,
		Resource:  rbac.ResourceTenant,
		Operation: op,
		CallSite:  r.URL.Path,
		Message:   msg,
	})
	return false
}

// readOnly rejects edits of system roles by tenant principals.
func (h *Handler) readOnly(w http.ResponseWriter, r *http.Request, role Role) bool {
	p, _ := rbac.PrincipalFromContext(r.Context())
	if role.IsSystemRole() && p.Authority != rbac.AuthoritySysAdmin {
		httpx.RespondError(w, &rbac.DeniedError{
			UserID:    p.UserID,
			Resource:  rbac.ResourceRole,
			Operation: rbac.OperationWrite,
			CallSite:  r.URL.Path,
			Message:   "System roles can only be changed by a system administrator",
		})
		return true
	}
	return false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.WarnContext(r.Context(), op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.RespondError(w, fieldError(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func parsePermissions(in []permissionDTO) ([]rbac.Permission, error) {
	out := make([]rbac.Permission, 0, len(in))
	fields := map[string]string{}
	for i, dto := range in {
		p, err := rbac.ParsePermission(dto.Resource, dto.Operation)
		if err != nil {
			fields[fmt.Sprintf("permissions[%d]", i)] = err.Error()
			continue
		}
		out = append(out, p)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}

func pageLinkFromQuery(r *http.Request) shared.PageLink {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return shared.PageLink{
		Page:         page,
		PageSize:     size,
		TextSearch:   q.Get("textSearch"),
		SortProperty: q.Get("sortProperty"),
		SortOrder:    q.Get("sortOrder"),
	}.Normalize()
}
