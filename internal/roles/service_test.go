package roles

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

func newTestService(t *testing.T) (*Service, *memoryRepo, *memoryAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, NewGrantCache(client, time.Minute, nil), audit, nil)
	return svc, repo, audit
}

func tenantScope() uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.New(), Valid: true}
}

func perm(r rbac.Resource, o rbac.Operation) rbac.Permission {
	return rbac.Permission{Resource: r, Operation: o}
}

func TestCreateRole(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	tenant := tenantScope()

	role, err := svc.CreateRole(ctx, tenant, "  Operators ", "Field operators")
	require.NoError(t, err)
	assert.Equal(t, "Operators", role.Name)
	assert.Equal(t, int64(1), role.Version)
	assert.False(t, role.IsSystemRole())

	got, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role, got)
	assert.Equal(t, []string{actionRoleCreate}, audit.actions())
}

func TestCreateRoleValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, tenantScope(), "   ", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldErrors(), "name")

	_, err = svc.CreateRole(ctx, tenantScope(), strings.Repeat("n", 256), "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, tenantScope(), "ok", strings.Repeat("d", 1025))
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldErrors(), "description")

	_, err = svc.CreateRole(ctx, tenantScope(), strings.Repeat("n", 255), strings.Repeat("d", 1024))
	assert.NoError(t, err)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenant := tenantScope()

	_, err := svc.CreateRole(ctx, tenant, "Operators", "")
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, tenant, "Operators", "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateRole(ctx, tenantScope(), "Operators", "other tenant")
	assert.NoError(t, err)

	_, err = svc.CreateRole(ctx, uuid.NullUUID{}, "Auditors", "")
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, uuid.NullUUID{}, "Auditors", "")
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestGetRoleNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetRole(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListRolesAndSystemRoles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenant := tenantScope()
	for _, name := range []string{"Charlie", "Alpha", "Bravo"} {
		_, err := svc.CreateRole(ctx, tenant, name, "")
		require.NoError(t, err)
	}
	_, err := svc.CreateRole(ctx, tenantScope(), "Elsewhere", "")
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, uuid.NullUUID{}, "Platform", "")
	require.NoError(t, err)

	page, err := svc.ListRoles(ctx, tenant.UUID, shared.PageLink{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Alpha", page.Data[0].Name)

	page, err = svc.ListRoles(ctx, tenant.UUID, shared.PageLink{TextSearch: "rav"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Bravo", page.Data[0].Name)

	system, err := svc.ListSystemRoles(ctx)
	require.NoError(t, err)
	require.Len(t, system, 1)
	assert.Equal(t, "Platform", system[0].Name)
	assert.True(t, system[0].IsSystemRole())
}

func TestUpdateRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tenant := tenantScope()
	role, err := svc.CreateRole(ctx, tenant, "Operators", "")
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, tenant, "Viewers", "")
	require.NoError(t, err)

	updated, err := svc.UpdateRole(ctx, role.ID, role.Version, "Operations", "renamed")
	require.NoError(t, err)
	assert.Equal(t, "Operations", updated.Name)
	assert.Equal(t, role.Version+1, updated.Version)

	_, err = svc.UpdateRole(ctx, role.ID, role.Version, "Stale", "")
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.NotErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateRole(ctx, role.ID, updated.Version, "Viewers", "")
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.UpdateRole(ctx, role.ID, updated.Version, "Operations", "same name is fine")
	assert.NoError(t, err)
}

func TestGrantMutations(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, tenantScope(), "Operators", "")
	require.NoError(t, err)

	require.NoError(t, svc.AddGrants(ctx, role.ID, []rbac.Permission{perm(rbac.ResourceDevice, rbac.OperationRead)}))
	require.NoError(t, svc.AddGrants(ctx, role.ID, []rbac.Permission{
		perm(rbac.ResourceDevice, rbac.OperationRead),
		perm(rbac.ResourceAlarm, rbac.OperationWrite),
	}))
	grants, err := svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 3, "duplicate grants are stored")
	for _, g := range grants {
		assert.Equal(t, role.ID, g.RoleID)
	}

	require.NoError(t, svc.RemoveGrants(ctx, role.ID, []rbac.Permission{
		perm(rbac.ResourceDevice, rbac.OperationRead),
		perm(rbac.ResourceQueue, rbac.OperationDelete),
	}))
	grants, err = svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, perm(rbac.ResourceAlarm, rbac.OperationWrite), grants[0].Permission())

	require.NoError(t, svc.ReplaceGrants(ctx, role.ID, []rbac.Permission{perm(rbac.ResourceAll, rbac.OperationRead)}))
	grants, err = svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, perm(rbac.ResourceAll, rbac.OperationRead), grants[0].Permission())

	assert.Equal(t, []string{actionRoleCreate, actionGrantsAdd, actionGrantsAdd, actionGrantsRemove, actionGrantsReplace}, audit.actions())
}

func TestGrantMutationsRejectUnknownEnumerators(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, tenantScope(), "Operators", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddGrants(ctx, role.ID, []rbac.Permission{perm(rbac.ResourceDevice, rbac.OperationRead)}))

	err = svc.ReplaceGrants(ctx, role.ID, []rbac.Permission{
		perm(rbac.ResourceAsset, rbac.OperationRead),
		{Resource: "GADGET", Operation: rbac.OperationRead},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	grants, err := svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, rbac.ResourceDevice, grants[0].Resource)
}

func TestGrantsForMissingRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	grants, err := svc.Grants(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, grants)
	assert.Empty(t, grants)
	err = svc.AddGrants(context.Background(), uuid.New(), []rbac.Permission{perm(rbac.ResourceDevice, rbac.OperationRead)})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleCascades(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, tenantScope(), "Operators", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddGrants(ctx, role.ID, []rbac.Permission{perm(rbac.ResourceDevice, rbac.OperationRead)}))

	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	_, err = svc.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	grants, err := svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
	assert.Empty(t, repo.state.grants[role.ID])

	assert.ErrorIs(t, svc.DeleteRole(ctx, role.ID), shared.ErrNotFound)
}

func TestDeleteRoleInUseIsConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, tenantScope(), "R1", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddGrants(ctx, role.ID, []rbac.Permission{perm(rbac.ResourceDevice, rbac.OperationRead)}))
	repo.assignUsers(role.ID, 1)

	err = svc.DeleteRole(ctx, role.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)

	got, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
	grants, err := svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestDeleteSystemRoleRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, uuid.NullUUID{}, "Platform", "")
	require.NoError(t, err)

	err = svc.DeleteRole(ctx, role.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.GetRole(ctx, role.ID)
	assert.NoError(t, err)
}

func TestReplaceWithEmptyRevokesEverything(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	role, err := svc.CreateRole(ctx, tenantScope(), "R1", "")
	require.NoError(t, err)
	require.NoError(t, svc.AddGrants(ctx, role.ID, []rbac.Permission{
		perm(rbac.ResourceDevice, rbac.OperationRead),
		perm(rbac.ResourceAll, rbac.OperationAll),
	}))

	resolver := rbac.NewResolver(svc, rbac.ResolverConfig{}, nil)
	principal := rbac.Principal{UserID: uuid.New(), RoleIDs: []uuid.UUID{role.ID}}
	perms, err := resolver.Resolve(ctx, principal)
	require.NoError(t, err)
	require.True(t, rbac.Authorize(perms, rbac.ResourceAsset, rbac.OperationWrite))

	require.NoError(t, svc.ReplaceGrants(ctx, role.ID, nil))
	grants, err := svc.Grants(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	perms, err = resolver.Resolve(ctx, principal)
	require.NoError(t, err)
	for _, r := range rbac.ListResources() {
		for _, o := range rbac.ListOperations() {
			assert.False(t, rbac.Authorize(perms, rbac.Resource(r), rbac.Operation(o)))
		}
	}
}

func TestCreateDefaultRolesIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	tenant := uuid.New()

	first, err := svc.CreateDefaultRoles(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, TenantAdministratorRole, first[0].Name)
	assert.Equal(t, CustomerUserRole, first[1].Name)

	admin, err := svc.Grants(ctx, first[0].ID)
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, perm(rbac.ResourceAll, rbac.OperationAll), admin[0].Permission())

	customer, err := svc.Grants(ctx, first[1].ID)
	require.NoError(t, err)
	set := rbac.NewPermissionSet()
	set.AddGrants(customer)
	assert.Equal(t, []rbac.Permission{
		perm(rbac.ResourceAsset, rbac.OperationRead),
		perm(rbac.ResourceDashboard, rbac.OperationRead),
		perm(rbac.ResourceDevice, rbac.OperationRead),
	}, set.Sorted())

	second, err := svc.CreateDefaultRoles(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, repo.state.roles, 2)
	assert.Len(t, repo.state.grants[first[1].ID], 3)
}

func TestCreateDefaultRolesKeepsExisting(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	tenant := uuid.New()
	custom, err := svc.CreateRole(ctx, uuid.NullUUID{UUID: tenant, Valid: true}, CustomerUserRole, "customised")
	require.NoError(t, err)

	roles, err := svc.CreateDefaultRoles(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, custom, roles[1])
	assert.Empty(t, repo.state.grants[custom.ID])
}

func TestDeleteTenantRoles(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	tenant := uuid.New()
	other := uuid.New()
	_, err := svc.CreateDefaultRoles(ctx, tenant)
	require.NoError(t, err)
	kept, err := svc.CreateDefaultRoles(ctx, other)
	require.NoError(t, err)

	n, err := svc.DeleteTenantRoles(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, repo.state.roles, 2)
	for _, role := range kept {
		_, err := svc.GetRole(ctx, role.ID)
		assert.NoError(t, err)
	}
}

func TestAuditRecordsActor(t *testing.T) {
	svc, _, audit := newTestService(t)
	actor := uuid.New()
	ctx := rbac.ContextWithPrincipal(context.Background(), rbac.Principal{UserID: actor})
	_, err := svc.CreateRole(ctx, tenantScope(), "Operators", "")
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, actor, audit.logs[0].ActorID)
	assert.Equal(t, auditEntityRole, audit.logs[0].Entity)
}
