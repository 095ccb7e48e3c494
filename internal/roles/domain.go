// Package roles stores roles and their grants and validates every mutation.
package roles

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
)

// Names of the roles provisioned for every new tenant.
const (
	TenantAdministratorRole = "Tenant Administrator"
	CustomerUserRole        = "Customer User"
)

// Role is a named bundle of grants. Roles without a tenant are system roles.
type Role struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    uuid.NullUUID `json:"tenantId"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	IsSystem    bool          `json:"isSystem"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// IsSystemRole reports whether the role is shared across tenants.
func (r Role) IsSystemRole() bool {
	return !r.TenantID.Valid || r.IsSystem
}

// RoleInput carries the editable fields of a role.
type RoleInput struct {
	Name        string `validate:"required,max=255"`
	Description string `validate:"max=1024"`
}

// defaultRole describes a role provisioned for new tenants.
type defaultRole struct {
	name        string
	description string
	permissions []rbac.Permission
}

var defaultRoles = []defaultRole{
	{
		name:        TenantAdministratorRole,
		description: "Full access to every tenant resource",
		permissions: []rbac.Permission{
			{Resource: rbac.ResourceAll, Operation: rbac.OperationAll},
		},
	},
	{
		name:        CustomerUserRole,
		description: "Read access to devices, assets and dashboards",
		permissions: []rbac.Permission{
			{Resource: rbac.ResourceDevice, Operation: rbac.OperationRead},
			{Resource: rbac.ResourceAsset, Operation: rbac.OperationRead},
			{Resource: rbac.ResourceDashboard, Operation: rbac.OperationRead},
		},
	},
}
