package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nexus-iot/nexus/internal/shared"
)

const defaultResolveConcurrency = 4

// GrantSource returns the grants attached to a role.
type GrantSource interface {
	Grants(ctx context.Context, roleID uuid.UUID) ([]Grant, error)
}

// ResolverConfig tunes permission resolution.
type ResolverConfig struct {
	// SysAdminFullAccess adds ALL/ALL to every SYS_ADMIN principal.
	SysAdminFullAccess bool
	// Concurrency bounds parallel grant lookups per principal.
	Concurrency int
}

// Resolver computes a principal's effective permissions.
type Resolver struct {
	source GrantSource
	cfg    ResolverConfig
	logger *slog.Logger
}

// NewResolver constructs a Resolver reading grants from source.
func NewResolver(source GrantSource, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultResolveConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, cfg: cfg, logger: logger}
}

// Resolve returns the union of the grants of every role held by p. A principal
// without roles resolves to an empty set. Roles that no longer exist
// contribute nothing.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (PermissionSet, error) {
	set := PermissionSet{}
	if r.cfg.SysAdminFullAccess && p.Authority == AuthoritySysAdmin {
		set.Add(Permission{Resource: ResourceAll, Operation: OperationAll})
	}

	roleIDs := uniqueRoleIDs(p.RoleIDs)
	if len(roleIDs) == 0 {
		return set, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, roleID := range roleIDs {
		g.Go(func() error {
			grants, err := r.source.Grants(gctx, roleID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					r.logger.Debug("rbac resolve skipped missing role", slog.String("role_id", roleID.String()))
					return nil
				}
				return fmt.Errorf("rbac: grants for role %s: %w", roleID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, grant := range grants {
				perm := grant.Permission()
				if !perm.Valid() {
					r.logger.Debug("rbac resolve skipped unknown grant",
						slog.String("role_id", roleID.String()),
						slog.String("resource", string(grant.Resource)),
						slog.String("operation", string(grant.Operation)))
					continue
				}
				set.Add(perm)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// ResolvePrincipal returns a copy of p carrying its resolved permissions.
func (r *Resolver) ResolvePrincipal(ctx context.Context, p Principal) (Principal, error) {
	perms, err := r.Resolve(ctx, p)
	if err != nil {
		return Principal{}, err
	}
	return p.WithPermissions(perms), nil
}

func uniqueRoleIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
