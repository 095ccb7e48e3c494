// Package auth turns authenticated sessions into resolved principals.
package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
)

// PrincipalSource loads the unresolved principal of a user.
type PrincipalSource interface {
	Principal(ctx context.Context, userID uuid.UUID) (rbac.Principal, error)
}

// Service resolves the principal behind a session.
type Service struct {
	users    PrincipalSource
	resolver *rbac.Resolver
}

// NewService constructs a new Service.
func NewService(users PrincipalSource, resolver *rbac.Resolver) *Service {
	return &Service{users: users, resolver: resolver}
}

// Principal returns the user's principal with permissions resolved once.
func (s *Service) Principal(ctx context.Context, userID uuid.UUID) (rbac.Principal, error) {
	p, err := s.users.Principal(ctx, userID)
	if err != nil {
		return rbac.Principal{}, err
	}
	return s.resolver.ResolvePrincipal(ctx, p)
}
