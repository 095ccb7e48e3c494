package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	ListTenantUsers(ctx context.Context, tenantID uuid.UUID) ([]User, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
	UnassignRole(ctx context.Context, userID, roleID uuid.UUID) error
}

// RoleLookup returns the tenant scope of a role.
type RoleLookup interface {
	RoleTenant(ctx context.Context, roleID uuid.UUID) (uuid.NullUUID, error)
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	roles RoleLookup
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleLookup) *Service {
	return &Service{repo: repo, roles: roles}
}

// GetUser returns a user with its role assignments.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListUsers returns the users of a tenant.
func (s *Service) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	users, err := s.repo.ListTenantUsers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Principal builds the unresolved principal of a user.
func (s *Service) Principal(ctx context.Context, id uuid.UUID) (rbac.Principal, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return rbac.Principal{}, err
	}
	return u.Principal(), nil
}

// AssignRole gives the user a role of its own tenant or a system role.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	scope, err := s.roles.RoleTenant(ctx, roleID)
	if err != nil {
		return err
	}
	if scope.Valid && scope != u.TenantID {
		return fmt.Errorf("users: role %s belongs to another tenant: %w", roleID, shared.ErrValidation)
	}
	return s.repo.AssignRole(ctx, userID, roleID)
}

// UnassignRole removes a role from the user.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.repo.UnassignRole(ctx, userID, roleID)
}

func rbacAuthority(raw string) rbac.Authority {
	return rbac.Authority(strings.ToUpper(strings.TrimSpace(raw)))
}
