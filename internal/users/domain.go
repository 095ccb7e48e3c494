// Package users loads accounts and their role assignments.
package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
)

// User is an account able to hold roles.
type User struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.NullUUID  `json:"tenantId"`
	Email     string         `json:"email"`
	Authority rbac.Authority `json:"authority"`
	// RoleID is the primary role; RoleIDs includes it along with additional assignments.
	RoleID    uuid.NullUUID `json:"roleId"`
	RoleIDs   []uuid.UUID   `json:"roleIds"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Principal returns the unresolved principal for the user.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{
		UserID:    u.ID,
		TenantID:  u.TenantID,
		Email:     u.Email,
		Authority: u.Authority,
		RoleIDs:   append([]uuid.UUID(nil), u.RoleIDs...),
	}
}
