package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// Audit actions recorded for role mutations.
const (
	actionRoleCreate    = "role.create"
	actionRoleUpdate    = "role.update"
	actionRoleDelete    = "role.delete"
	actionGrantsReplace = "role.grants.replace"
	actionGrantsAdd     = "role.grants.add"
	actionGrantsRemove  = "role.grants.remove"
	auditEntityRole     = "role"
)

// Service orchestrates role storage, grant caching and validation.
type Service struct {
	repo     Repository
	cache    *GrantCache
	audit    shared.AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the role service. cache and audit may be nil.
func NewService(repo Repository, cache *GrantCache, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		audit:    audit,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRole creates a role in the tenant scope, or the system scope when tenantID is null.
func (s *Service) CreateRole(ctx context.Context, tenantID uuid.NullUUID, name, description string) (Role, error) {
	in := RoleInput{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := validateInput(s.validate, in); err != nil {
		return Role{}, err
	}
	now := s.now()
	role := Role{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		IsSystem:    !tenantID.Valid,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureNameFree(ctx, tx, tenantID, in.Name, uuid.Nil); err != nil {
			return err
		}
		return tx.InsertRole(ctx, role)
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, tenantID, actionRoleCreate, role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole edits name and description when version still matches the stored role.
func (s *Service) UpdateRole(ctx context.Context, roleID uuid.UUID, version int64, name, description string) (Role, error) {
	in := RoleInput{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := validateInput(s.validate, in); err != nil {
		return Role{}, err
	}
	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if current.Version != version {
			return fmt.Errorf("roles: role %s has version %d, not %d: %w", roleID, current.Version, version, shared.ErrConflict)
		}
		if err := ensureNameFree(ctx, tx, current.TenantID, in.Name, roleID); err != nil {
			return err
		}
		current.Name = in.Name
		current.Description = in.Description
		current.UpdatedAt = s.now()
		updated, err = tx.UpdateRole(ctx, current, version)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, updated.TenantID, actionRoleUpdate, roleID, map[string]any{"name": updated.Name, "version": updated.Version})
	return updated, nil
}

func ensureNameFree(ctx context.Context, tx TxRepository, tenantID uuid.NullUUID, name string, self uuid.UUID) error {
	existing, err := tx.FindRoleByName(ctx, tenantID, name)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return duplicateNameError(name)
	}
	return nil
}

// GetRole returns a role by ID.
func (s *Service) GetRole(ctx context.Context, roleID uuid.UUID) (Role, error) {
	return s.repo.GetRole(ctx, roleID)
}

// ListRoles returns a page of the tenant's own roles.
func (s *Service) ListRoles(ctx context.Context, tenantID uuid.UUID, link shared.PageLink) (shared.PageData[Role], error) {
	link = link.Normalize()
	roles, total, err := s.repo.ListTenantRoles(ctx, tenantID, link)
	if err != nil {
		return shared.PageData[Role]{}, err
	}
	return shared.NewPageData(roles, total, link), nil
}

// ListSystemRoles returns every system role.
func (s *Service) ListSystemRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListSystemRoles(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// DeleteRole removes a role and its grants. System roles and roles still
// assigned to users are rejected.
func (s *Service) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	var deleted Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole() {
			return fieldError("id", "system roles cannot be deleted")
		}
		inUse, err := tx.CountUsersByRole(ctx, roleID)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return fmt.Errorf("roles: role %s is assigned to %d users: %w", roleID, inUse, shared.ErrConflict)
		}
		if err := tx.DeleteGrants(ctx, roleID); err != nil {
			return err
		}
		deleted = role
		return tx.DeleteRole(ctx, roleID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, roleID)
	s.record(ctx, deleted.TenantID, actionRoleDelete, roleID, map[string]any{"name": deleted.Name})
	return nil
}

// Grants returns the grants attached to a role. An unknown role has none.
func (s *Service) Grants(ctx context.Context, roleID uuid.UUID) ([]rbac.Grant, error) {
	return s.cache.Grants(ctx, roleID, func(ctx context.Context) ([]rbac.Grant, error) {
		grants, err := s.repo.ListGrants(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if grants == nil {
			grants = []rbac.Grant{}
		}
		return grants, nil
	})
}

// ReplaceGrants sets the role's grants to exactly perms.
func (s *Service) ReplaceGrants(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	return s.mutateGrants(ctx, roleID, perms, actionGrantsReplace, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteGrants(ctx, roleID); err != nil {
			return err
		}
		return tx.InsertGrants(ctx, newGrants(roleID, perms))
	})
}

// AddGrants attaches perms to the role. Pairs already granted are stored again.
func (s *Service) AddGrants(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	return s.mutateGrants(ctx, roleID, perms, actionGrantsAdd, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertGrants(ctx, newGrants(roleID, perms))
	})
}

// RemoveGrants detaches every grant matching one of perms. Unmatched pairs are ignored.
func (s *Service) RemoveGrants(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	return s.mutateGrants(ctx, roleID, perms, actionGrantsRemove, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteGrantPairs(ctx, roleID, perms)
	})
}

func (s *Service) mutateGrants(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission, action string, fn func(context.Context, TxRepository) error) error {
	if err := validatePermissions(perms); err != nil {
		return err
	}
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if role, err = tx.LockRole(ctx, roleID); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, roleID)
	s.record(ctx, role.TenantID, action, roleID, map[string]any{"permissions": permissionStrings(perms)})
	return nil
}

// CreateDefaultRoles provisions the standard roles of a tenant. Roles that
// already exist by name are returned untouched.
func (s *Service) CreateDefaultRoles(ctx context.Context, tenantID uuid.UUID) ([]Role, error) {
	scope := uuid.NullUUID{UUID: tenantID, Valid: true}
	out := make([]Role, 0, len(defaultRoles))
	var created []Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		out, created = out[:0], created[:0]
		for _, def := range defaultRoles {
			existing, err := tx.FindRoleByName(ctx, scope, def.name)
			if err == nil {
				out = append(out, existing)
				continue
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			now := s.now()
			role := Role{
				ID:          uuid.New(),
				TenantID:    scope,
				Name:        def.name,
				Description: def.description,
				Version:     1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.InsertRole(ctx, role); err != nil {
				return err
			}
			if err := tx.InsertGrants(ctx, newGrants(role.ID, def.permissions)); err != nil {
				return err
			}
			out = append(out, role)
			created = append(created, role)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, role := range created {
		s.record(ctx, scope, actionRoleCreate, role.ID, map[string]any{"name": role.Name, "default": true})
	}
	s.logger.InfoContext(ctx, "default roles provisioned",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("created", len(created)))
	return out, nil
}

// DeleteTenantRoles removes every role owned by the tenant along with their
// grants. It is used when the tenant itself is removed.
func (s *Service) DeleteTenantRoles(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var ids []uuid.UUID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if ids, err = tx.ListTenantRoleIDs(ctx, tenantID); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.DeleteGrants(ctx, id); err != nil {
				return err
			}
			if err := tx.DeleteRole(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	scope := uuid.NullUUID{UUID: tenantID, Valid: true}
	for _, id := range ids {
		s.invalidate(ctx, id)
		s.record(ctx, scope, actionRoleDelete, id, map[string]any{"tenant_purge": true})
	}
	return len(ids), nil
}

func (s *Service) invalidate(ctx context.Context, roleID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, roleID); err != nil {
		s.logger.ErrorContext(ctx, "grant cache invalidate", slog.String("role_id", roleID.String()), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, tenantID uuid.NullUUID, action string, roleID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actor uuid.UUID
	if p, ok := rbac.PrincipalFromContext(ctx); ok {
		actor = p.UserID
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		TenantID: tenantID,
		Action:   action,
		Entity:   auditEntityRole,
		EntityID: roleID.String(),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "role audit", slog.String("action", action), slog.Any("error", err))
	}
}

func validatePermissions(perms []rbac.Permission) error {
	fields := map[string]string{}
	for i, p := range perms {
		if !p.Resource.Valid() {
			fields[fmt.Sprintf("permissions[%d].resource", i)] = fmt.Sprintf("unknown resource %q", p.Resource)
		}
		if !p.Operation.Valid() {
			fields[fmt.Sprintf("permissions[%d].operation", i)] = fmt.Sprintf("unknown operation %q", p.Operation)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func newGrants(roleID uuid.UUID, perms []rbac.Permission) []rbac.Grant {
	out := make([]rbac.Grant, 0, len(perms))
	for _, p := range perms {
		out = append(out, rbac.NewGrant(roleID, p))
	}
	return out
}

func permissionStrings(perms []rbac.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

// RoleTenant returns the tenant scope of a role; invalid for system roles.
func (s *Service) RoleTenant(ctx context.Context, roleID uuid.UUID) (uuid.NullUUID, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	if role.IsSystemRole() {
		return uuid.NullUUID{}, nil
	}
	return role.TenantID, nil
}
