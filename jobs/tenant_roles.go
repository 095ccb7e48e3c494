package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/nexus-iot/nexus/internal/jobs"
	"github.com/nexus-iot/nexus/internal/roles"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// TenantRoleService is the subset of roles.Service the tenant jobs need.
type TenantRoleService interface {
	CreateDefaultRoles(ctx context.Context, tenantID uuid.UUID) ([]roles.Role, error)
	DeleteTenantRoles(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// TenantRolesJob provisions and purges tenant roles.
type TenantRolesJob struct {
	Roles   TenantRoleService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTenantRolesJob wires dependencies for the tenant role handlers.
func NewTenantRolesJob(service TenantRoleService, logger *slog.Logger, metrics *jobmetrics.Metrics) *TenantRolesJob {
	return &TenantRolesJob{Roles: service, Logger: logger, Metrics: metrics}
}

// Handlers returns the task registrations served by the job.
func (j *TenantRolesJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskProvisionTenantRoles, Handler: j.HandleProvision},
		{Type: TaskPurgeTenantRoles, Handler: j.HandlePurge},
	}
}

// HandleProvision creates the default roles for the payload tenant. Existing
// roles are left untouched, so retries are safe.
func (j *TenantRolesJob) HandleProvision(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Roles == nil {
		return errors.New("tenant roles: handler not configured")
	}
	payload, err := decodeTenantRolesPayload(t)
	if err != nil {
		j.logger(TaskProvisionTenantRoles).Warn("discard task", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskProvisionTenantRoles)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskProvisionTenantRoles).With(slog.String("tenant_id", payload.TenantID.String()))
	start := time.Now()
	result, err := j.Roles.CreateDefaultRoles(ctx, payload.TenantID)
	if err != nil {
		logger.Error("provision tenant roles", slog.Any("error", err))
		return err
	}
	j.metrics().AddRoles("provisioned", len(result))
	logger.Info("provisioned tenant roles", slog.Int("roles", len(result)), slog.Duration("duration", time.Since(start)))
	return nil
}

// HandlePurge removes all roles of the payload tenant together with their grants.
func (j *TenantRolesJob) HandlePurge(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Roles == nil {
		return errors.New("tenant roles: handler not configured")
	}
	payload, err := decodeTenantRolesPayload(t)
	if err != nil {
		j.logger(TaskPurgeTenantRoles).Warn("discard task", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPurgeTenantRoles)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskPurgeTenantRoles).With(slog.String("tenant_id", payload.TenantID.String()))
	start := time.Now()
	n, err := j.Roles.DeleteTenantRoles(ctx, payload.TenantID)
	if err != nil {
		logger.Error("purge tenant roles", slog.Any("error", err))
		return err
	}
	j.metrics().AddRoles("purged", n)
	logger.Info("purged tenant roles", slog.Int("roles", n), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *TenantRolesJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *TenantRolesJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
