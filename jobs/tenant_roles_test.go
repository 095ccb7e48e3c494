package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/nexus-iot/nexus/internal/jobs"
	"github.com/nexus-iot/nexus/internal/roles"
)

type stubRoleService struct {
	provisioned []uuid.UUID
	purged      []uuid.UUID
	created     int
	removed     int
	err         error
}

func (s *stubRoleService) CreateDefaultRoles(_ context.Context, tenantID uuid.UUID) ([]roles.Role, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.provisioned = append(s.provisioned, tenantID)
	return make([]roles.Role, s.created), nil
}

func (s *stubRoleService) DeleteTenantRoles(_ context.Context, tenantID uuid.UUID) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.purged = append(s.purged, tenantID)
	return s.removed, nil
}

func newTestJob(svc *stubRoleService) *TenantRolesJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTenantRolesJob(svc, logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestTenantRolesTasks(t *testing.T) {
	tenantID := uuid.New()

	task, err := NewProvisionTenantRolesTask(tenantID)
	require.NoError(t, err)
	assert.Equal(t, TaskProvisionTenantRoles, task.Type())
	var payload TenantRolesPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, tenantID, payload.TenantID)

	task, err = NewPurgeTenantRolesTask(tenantID)
	require.NoError(t, err)
	assert.Equal(t, TaskPurgeTenantRoles, task.Type())

	_, err = NewPurgeTenantRolesTask(uuid.Nil)
	assert.Error(t, err)
}

func TestHandleProvision(t *testing.T) {
	svc := &stubRoleService{created: 2}
	job := newTestJob(svc)
	tenantID := uuid.New()

	task, err := NewProvisionTenantRolesTask(tenantID)
	require.NoError(t, err)
	require.NoError(t, job.HandleProvision(context.Background(), task))
	assert.Equal(t, []uuid.UUID{tenantID}, svc.provisioned)
}

func TestHandlePurge(t *testing.T) {
	svc := &stubRoleService{removed: 3}
	job := newTestJob(svc)
	tenantID := uuid.New()

	task, err := NewPurgeTenantRolesTask(tenantID)
	require.NoError(t, err)
	require.NoError(t, job.HandlePurge(context.Background(), task))
	assert.Equal(t, []uuid.UUID{tenantID}, svc.purged)
}

func TestHandlersSkipRetryOnBadPayload(t *testing.T) {
	svc := &stubRoleService{}
	job := newTestJob(svc)

	bad := asynq.NewTask(TaskProvisionTenantRoles, []byte("{"))
	assert.ErrorIs(t, job.HandleProvision(context.Background(), bad), asynq.SkipRetry)

	missing := asynq.NewTask(TaskPurgeTenantRoles, []byte(`{"tenant_id":"00000000-0000-0000-0000-000000000000"}`))
	assert.ErrorIs(t, job.HandlePurge(context.Background(), missing), asynq.SkipRetry)

	assert.Empty(t, svc.provisioned)
	assert.Empty(t, svc.purged)
}

func TestHandlersReturnServiceErrors(t *testing.T) {
	boom := errors.New("db down")
	job := newTestJob(&stubRoleService{err: boom})

	task, err := NewProvisionTenantRolesTask(uuid.New())
	require.NoError(t, err)
	assert.ErrorIs(t, job.HandleProvision(context.Background(), task), boom)
}

func TestHandlersRegistration(t *testing.T) {
	handlers := newTestJob(&stubRoleService{}).Handlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, TaskProvisionTenantRoles, handlers[0].Type)
	assert.Equal(t, TaskPurgeTenantRoles, handlers[1].Type)

	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
