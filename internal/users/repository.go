package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexus-iot/nexus/internal/platform/db"
	"github.com/nexus-iot/nexus/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userRoleIDsQuery = `SELECT role_id FROM users WHERE id = $1 AND role_id IS NOT NULL
UNION
SELECT role_id FROM user_roles WHERE user_id = $1`

// GetUser returns the user with every role it holds.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := db.WithReadOnlyTx(ctx, r.pool, func(tx pgx.Tx) error {
		var authority string
		err := tx.QueryRow(ctx, `SELECT id, tenant_id, email, authority, role_id, created_at FROM users WHERE id = $1`, id).
			Scan(&u.ID, &u.TenantID, &u.Email, &authority, &u.RoleID, &u.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		u.Authority = rbacAuthority(authority)

		rows, err := tx.Query(ctx, userRoleIDsQuery, id)
		if err != nil {
			return err
		}
		u.RoleIDs, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		return err
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ListTenantUsers returns the users of a tenant ordered by email.
func (r *Repository) ListTenantUsers(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.tenant_id, u.email, u.authority, u.role_id, u.created_at,
       COALESCE(ARRAY(
           SELECT ur.role_id FROM user_roles ur WHERE ur.user_id = u.id
           UNION SELECT u.role_id WHERE u.role_id IS NOT NULL)::text[], '{}')
FROM users u WHERE u.tenant_id = $1 ORDER BY u.email`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		var authority string
		var roleIDs []string
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Email, &authority, &u.RoleID, &u.CreatedAt, &roleIDs); err != nil {
			return nil, err
		}
		u.Authority = rbacAuthority(authority)
		for _, raw := range roleIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("users: role id %q: %w", raw, err)
			}
			u.RoleIDs = append(u.RoleIDs, id)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// AssignRole attaches an additional role to the user. Assigning twice is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("users: assign role %s to %s: %w", roleID, userID, shared.ErrNotFound)
	}
	return err
}

// UnassignRole detaches a role from the user, including the primary role.
func (r *Repository) UnassignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `UPDATE users SET role_id = NULL WHERE id = $1 AND role_id = $2`, userID, roleID)
	return err
}
