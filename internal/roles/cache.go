package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/nexus-iot/nexus/internal/rbac"
)

const (
	grantKeyPrefix = "rbac:grants"
	// loadTimeout bounds a shared load once it no longer follows any caller's context.
	loadTimeout = 10 * time.Second
)

// GrantCache caches role grants in Redis under per-role version counters.
// Writers bump the version after commit, so readers observe either the
// previous or the new grant set and never a partial one.
type GrantCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewGrantCache instantiates the cache. A nil client disables caching.
func NewGrantCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *GrantCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantCache{client: client, ttl: ttl, logger: logger}
}

func versionKey(roleID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:version", grantKeyPrefix, roleID)
}

func grantsKey(roleID uuid.UUID, version int64) string {
	return fmt.Sprintf("%s:%s:%d", grantKeyPrefix, roleID, version)
}

// Version returns the role's current grant version; zero when never bumped.
func (c *GrantCache) Version(ctx context.Context, roleID uuid.UUID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(roleID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Grants returns the cached grants of a role, populating them with loader on a miss.
// Concurrent misses for the same version share one loader call, which runs
// detached from the cancellation of whichever caller started it.
func (c *GrantCache) Grants(ctx context.Context, roleID uuid.UUID, loader func(context.Context) ([]rbac.Grant, error)) ([]rbac.Grant, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx, roleID)
	if err != nil {
		c.logger.WarnContext(ctx, "grant cache version", slog.String("role_id", roleID.String()), slog.Any("error", err))
		return loader(ctx)
	}
	key := grantsKey(roleID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var grants []rbac.Grant
		if err := json.Unmarshal(payload, &grants); err == nil {
			return grants, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "grant cache read", slog.String("role_id", roleID.String()), slog.Any("error", err))
		return loader(ctx)
	}

	res := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		grants, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		if grants == nil {
			grants = []rbac.Grant{}
		}
		raw, err := json.Marshal(grants)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(loadCtx, key, raw, c.ttl).Err(); err != nil {
			c.logger.WarnContext(loadCtx, "grant cache write", slog.String("role_id", roleID.String()), slog.Any("error", err))
		}
		return grants, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]rbac.Grant), nil
	}
}

// Invalidate bumps the role's version so subsequent reads reload from storage.
func (c *GrantCache) Invalidate(ctx context.Context, roleID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(roleID)).Err()
}
