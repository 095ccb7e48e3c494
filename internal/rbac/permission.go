package rbac

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Permission is a (resource, operation) pair.
type Permission struct {
	Resource  Resource  `json:"resource"`
	Operation Operation `json:"operation"`
}

// Valid reports whether both halves are known enumerators.
func (p Permission) Valid() bool {
	return p.Resource.Valid() && p.Operation.Valid()
}

func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Operation)
}

// ParsePermission parses a declared resource and operation pair.
func ParsePermission(resource, operation string) (Permission, error) {
	r, err := ParseResource(resource)
	if err != nil {
		return Permission{}, err
	}
	o, err := ParseOperation(operation)
	if err != nil {
		return Permission{}, err
	}
	return Permission{Resource: r, Operation: o}, nil
}

// Grant is a permission attached to one role.
type Grant struct {
	ID        uuid.UUID `json:"id"`
	RoleID    uuid.UUID `json:"roleId"`
	Resource  Resource  `json:"resource"`
	Operation Operation `json:"operation"`
}

// NewGrant builds a grant with a fresh identifier.
func NewGrant(roleID uuid.UUID, p Permission) Grant {
	return Grant{ID: uuid.New(), RoleID: roleID, Resource: p.Resource, Operation: p.Operation}
}

// Permission returns the grant's matching key.
func (g Grant) Permission() Permission {
	return Permission{Resource: g.Resource, Operation: g.Operation}
}

// PermissionSet is a de-duplicated set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Add inserts p into the set.
func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

// AddGrants inserts the permission of every grant.
func (s PermissionSet) AddGrants(grants []Grant) {
	for _, g := range grants {
		s[g.Permission()] = struct{}{}
	}
}

// Contains reports exact membership, without wildcard expansion.
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the permissions ordered by resource then operation.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Permission) int {
		if c := strings.Compare(string(a.Resource), string(b.Resource)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Operation), string(b.Operation))
	})
	return out
}

func (s PermissionSet) String() string {
	parts := make([]string, 0, len(s))
	for _, p := range s.Sorted() {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " "))
}
