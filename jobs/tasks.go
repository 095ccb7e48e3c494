package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProvisionTenantRoles creates the default roles of a tenant.
	TaskProvisionTenantRoles = "roles:provision"
	// TaskPurgeTenantRoles removes every role owned by a tenant.
	TaskPurgeTenantRoles = "roles:purge"
)

// TenantRolesPayload identifies the tenant a role maintenance task works on.
type TenantRolesPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
}

// NewProvisionTenantRolesTask constructs an Asynq task for default role provisioning.
func NewProvisionTenantRolesTask(tenantID uuid.UUID) (*asynq.Task, error) {
	return newTenantRolesTask(TaskProvisionTenantRoles, tenantID)
}

// NewPurgeTenantRolesTask constructs an Asynq task for tenant role removal.
func NewPurgeTenantRolesTask(tenantID uuid.UUID) (*asynq.Task, error) {
	return newTenantRolesTask(TaskPurgeTenantRoles, tenantID)
}

func newTenantRolesTask(typename string, tenantID uuid.UUID) (*asynq.Task, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%s: tenant id required", typename)
	}
	body, err := json.Marshal(TenantRolesPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

func decodeTenantRolesPayload(t *asynq.Task) (TenantRolesPayload, error) {
	var payload TenantRolesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.TenantID == uuid.Nil {
		return payload, fmt.Errorf("%s: missing tenant id", t.Type())
	}
	return payload, nil
}
