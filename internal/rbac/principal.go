package rbac

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Authority is the coarse account class of a principal.
type Authority string

// Authorities.
const (
	AuthoritySysAdmin     Authority = "SYS_ADMIN"
	AuthorityTenantAdmin  Authority = "TENANT_ADMIN"
	AuthorityCustomerUser Authority = "CUSTOMER_USER"
)

// Principal is the authenticated caller of a protected operation.
type Principal struct {
	UserID    uuid.UUID
	TenantID  uuid.NullUUID
	Email     string
	Authority Authority
	RoleIDs   []uuid.UUID

	permissions PermissionSet
}

// Permissions returns a copy of the resolved permission set, or nil when the
// principal was never resolved.
func (p Principal) Permissions() PermissionSet {
	if p.permissions == nil {
		return nil
	}
	return p.permissions.Clone()
}

// Resolved reports whether the principal carries a resolved permission set.
func (p Principal) Resolved() bool {
	return p.permissions != nil
}

// WithPermissions returns a copy of p carrying perms. p is left unchanged.
func (p Principal) WithPermissions(perms PermissionSet) Principal {
	out := p
	out.RoleIDs = slices.Clone(p.RoleIDs)
	if perms == nil {
		perms = PermissionSet{}
	}
	out.permissions = perms.Clone()
	return out
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
