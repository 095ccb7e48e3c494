package roles

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// memoryRepo is an in-memory Repository. WithTx works on a copy and swaps it
// in on success, so failed transactions leave no trace.
type memoryRepo struct {
	mu         sync.Mutex
	state      memoryState
	grantReads int
}

type memoryState struct {
	roles     map[uuid.UUID]Role
	grants    map[uuid.UUID][]rbac.Grant
	userRoles map[uuid.UUID]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		roles:     map[uuid.UUID]Role{},
		grants:    map[uuid.UUID][]rbac.Grant{},
		userRoles: map[uuid.UUID]int{},
	}}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		roles:     make(map[uuid.UUID]Role, len(s.roles)),
		grants:    make(map[uuid.UUID][]rbac.Grant, len(s.grants)),
		userRoles: make(map[uuid.UUID]int, len(s.userRoles)),
	}
	for k, v := range s.roles {
		out.roles[k] = v
	}
	for k, v := range s.grants {
		out.grants[k] = slices.Clone(v)
	}
	for k, v := range s.userRoles {
		out.userRoles[k] = v
	}
	return out
}

func (r *memoryRepo) assignUsers(roleID uuid.UUID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.userRoles[roleID] = n
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) GetRole(_ context.Context, id uuid.UUID) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.state.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) FindRoleByName(_ context.Context, tenantID uuid.NullUUID, name string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.findByName(tenantID, name)
}

func (s memoryState) findByName(tenantID uuid.NullUUID, name string) (Role, error) {
	for _, role := range s.roles {
		if role.TenantID == tenantID && role.Name == name {
			return role, nil
		}
	}
	return Role{}, shared.ErrNotFound
}

func (r *memoryRepo) ListTenantRoles(_ context.Context, tenantID uuid.UUID, link shared.PageLink) ([]Role, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Role
	for _, role := range r.state.roles {
		if role.TenantID.Valid && role.TenantID.UUID == tenantID &&
			strings.Contains(strings.ToLower(role.Name), strings.ToLower(link.TextSearch)) {
			matched = append(matched, role)
		}
	}
	slices.SortFunc(matched, func(a, b Role) int { return strings.Compare(a.Name, b.Name) })
	if link.SortOrder == "DESC" {
		slices.Reverse(matched)
	}
	total := len(matched)
	start := min(link.Offset(), total)
	end := min(start+link.PageSize, total)
	return matched[start:end], total, nil
}

func (r *memoryRepo) ListSystemRoles(context.Context) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Role
	for _, role := range r.state.roles {
		if role.IsSystemRole() {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListGrants(_ context.Context, roleID uuid.UUID) ([]rbac.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grantReads++
	return slices.Clone(r.state.grants[roleID]), nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockRole(_ context.Context, id uuid.UUID) (Role, error) {
	role, ok := t.state.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (t *memoryTx) FindRoleByName(_ context.Context, tenantID uuid.NullUUID, name string) (Role, error) {
	return t.state.findByName(tenantID, name)
}

func (t *memoryTx) InsertRole(_ context.Context, role Role) error {
	if _, err := t.state.findByName(role.TenantID, role.Name); err == nil {
		return duplicateNameError(role.Name)
	}
	t.state.roles[role.ID] = role
	return nil
}

func (t *memoryTx) UpdateRole(_ context.Context, role Role, expectedVersion int64) (Role, error) {
	current, ok := t.state.roles[role.ID]
	if !ok || current.Version != expectedVersion {
		return Role{}, shared.ErrConflict
	}
	role.Version = expectedVersion + 1
	t.state.roles[role.ID] = role
	return role, nil
}

func (t *memoryTx) DeleteRole(_ context.Context, id uuid.UUID) error {
	if _, ok := t.state.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.state.roles, id)
	return nil
}

func (t *memoryTx) ListTenantRoleIDs(_ context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, role := range t.state.roles {
		if role.TenantID.Valid && role.TenantID.UUID == tenantID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *memoryTx) CountUsersByRole(_ context.Context, roleID uuid.UUID) (int, error) {
	return t.state.userRoles[roleID], nil
}

func (t *memoryTx) InsertGrants(_ context.Context, grants []rbac.Grant) error {
	for _, g := range grants {
		t.state.grants[g.RoleID] = append(t.state.grants[g.RoleID], g)
	}
	return nil
}

func (t *memoryTx) DeleteGrants(_ context.Context, roleID uuid.UUID) error {
	delete(t.state.grants, roleID)
	return nil
}

func (t *memoryTx) DeleteGrantPairs(_ context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	remove := rbac.NewPermissionSet(perms...)
	kept := t.state.grants[roleID][:0:0]
	for _, g := range t.state.grants[roleID] {
		if !remove.Contains(g.Permission()) {
			kept = append(kept, g)
		}
	}
	t.state.grants[roleID] = kept
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.logs))
	for i, l := range a.logs {
		out[i] = l.Action
	}
	return out
}
