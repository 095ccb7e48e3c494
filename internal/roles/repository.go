package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexus-iot/nexus/internal/platform/db"
	"github.com/nexus-iot/nexus/internal/rbac"
	"github.com/nexus-iot/nexus/internal/shared"
)

// Repository defines role data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	FindRoleByName(ctx context.Context, tenantID uuid.NullUUID, name string) (Role, error)
	ListTenantRoles(ctx context.Context, tenantID uuid.UUID, link shared.PageLink) ([]Role, int, error)
	ListSystemRoles(ctx context.Context) ([]Role, error)
	ListGrants(ctx context.Context, roleID uuid.UUID) ([]rbac.Grant, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	LockRole(ctx context.Context, id uuid.UUID) (Role, error)
	FindRoleByName(ctx context.Context, tenantID uuid.NullUUID, name string) (Role, error)
	InsertRole(ctx context.Context, role Role) error
	UpdateRole(ctx context.Context, role Role, expectedVersion int64) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	ListTenantRoleIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	CountUsersByRole(ctx context.Context, roleID uuid.UUID) (int, error)
	InsertGrants(ctx context.Context, grants []rbac.Grant) error
	DeleteGrants(ctx context.Context, roleID uuid.UUID) error
	DeleteGrantPairs(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

const roleColumns = `id, tenant_id, name, description, is_system, version, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.IsSystem,
		&role.Version, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func getRole(ctx context.Context, q querier, id uuid.UUID, lock bool) (Role, error) {
	sql := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	return scanRole(q.QueryRow(ctx, sql, id))
}

func findRoleByName(ctx context.Context, q querier, tenantID uuid.NullUUID, name string) (Role, error) {
	return scanRole(q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles
WHERE tenant_id IS NOT DISTINCT FROM $1 AND name = $2`, tenantID, name))
}

func (r *pgRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return getRole(ctx, r.pool, id, false)
}

func (r *pgRepository) FindRoleByName(ctx context.Context, tenantID uuid.NullUUID, name string) (Role, error) {
	return findRoleByName(ctx, r.pool, tenantID, name)
}

var sortColumns = map[string]string{
	"name":        "name",
	"createdAt":   "created_at",
	"createdTime": "created_at",
}

func (r *pgRepository) ListTenantRoles(ctx context.Context, tenantID uuid.UUID, link shared.PageLink) ([]Role, int, error) {
	link = link.Normalize()
	where := `tenant_id = $1`
	args := []any{tenantID}
	if search := strings.TrimSpace(link.TextSearch); search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[link.SortProperty]
	if !ok {
		column = "name"
	}
	args = append(args, link.PageSize, link.Offset())
	sql := fmt.Sprintf(`SELECT %s FROM roles WHERE %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		roleColumns, where, column, link.SortOrder, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectRoles(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *pgRepository) ListSystemRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id IS NULL OR is_system ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (r *pgRepository) ListGrants(ctx context.Context, roleID uuid.UUID) ([]rbac.Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role_id, resource, operation FROM role_permissions
WHERE role_id = $1 ORDER BY resource, operation`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []rbac.Grant
	for rows.Next() {
		var g rbac.Grant
		var resource, operation string
		if err := rows.Scan(&g.ID, &g.RoleID, &resource, &operation); err != nil {
			return nil, err
		}
		g.Resource = rbac.Resource(resource)
		g.Operation = rbac.Operation(operation)
		out = append(out, g)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	q querier
}

func (r *pgTxRepository) LockRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return getRole(ctx, r.q, id, true)
}

func (r *pgTxRepository) FindRoleByName(ctx context.Context, tenantID uuid.NullUUID, name string) (Role, error) {
	return findRoleByName(ctx, r.q, tenantID, name)
}

func (r *pgTxRepository) InsertRole(ctx context.Context, role Role) error {
	_, err := r.q.Exec(ctx, `INSERT INTO roles (`+roleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		role.ID, role.TenantID, role.Name, role.Description, role.IsSystem, role.Version, role.CreatedAt, role.UpdatedAt)
	return mapWriteError(err, role.Name)
}

func (r *pgTxRepository) UpdateRole(ctx context.Context, role Role, expectedVersion int64) (Role, error) {
	updated, err := scanRole(r.q.QueryRow(ctx, `UPDATE roles
SET name = $2, description = $3, version = version + 1, updated_at = $4
WHERE id = $1 AND version = $5
RETURNING `+roleColumns, role.ID, role.Name, role.Description, role.UpdatedAt, expectedVersion))
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, fmt.Errorf("roles: role %s was modified concurrently: %w", role.ID, shared.ErrConflict)
	}
	if err != nil {
		return Role{}, mapWriteError(err, role.Name)
	}
	return updated, nil
}

func (r *pgTxRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) ListTenantRoleIDs(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.q.Query(ctx, `SELECT id FROM roles WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *pgTxRepository) CountUsersByRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM users u
WHERE u.role_id = $1 OR EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role_id = $1)`, roleID).Scan(&count)
	return count, err
}

func (r *pgTxRepository) InsertGrants(ctx context.Context, grants []rbac.Grant) error {
	if len(grants) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(grants))
	for _, g := range grants {
		rows = append(rows, []any{g.ID, g.RoleID, string(g.Resource), string(g.Operation)})
	}
	tx, ok := r.q.(pgx.Tx)
	if !ok {
		return errors.New("roles: insert grants requires a transaction")
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"role_permissions"},
		[]string{"id", "role_id", "resource", "operation"}, pgx.CopyFromRows(rows))
	return mapWriteError(err, "")
}

func (r *pgTxRepository) DeleteGrants(ctx context.Context, roleID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return err
}

func (r *pgTxRepository) DeleteGrantPairs(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	resources := make([]string, len(perms))
	operations := make([]string, len(perms))
	for i, p := range perms {
		resources[i] = string(p.Resource)
		operations[i] = string(p.Operation)
	}
	_, err := r.q.Exec(ctx, `DELETE FROM role_permissions rp
USING unnest($2::text[], $3::text[]) AS pairs(resource, operation)
WHERE rp.role_id = $1 AND rp.resource = pairs.resource AND rp.operation = pairs.operation`,
		roleID, resources, operations)
	return err
}

func mapWriteError(err error, name string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if name != "" {
				return duplicateNameError(name)
			}
			return fmt.Errorf("roles: %s: %w", pgErr.Message, shared.ErrConflict)
		case "23503":
			return fmt.Errorf("roles: %s: %w", pgErr.Message, shared.ErrConflict)
		}
	}
	return err
}
