package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront/backend/internal/tenant/domain"
)

const cacheKeyPrefix = "storefront:tenant:host:"

// CachedRepository fronts a Repository with Redis for host lookups. Only hits are
// cached; concurrent misses for one host share a single database query. Redis
// failures fall through to the underlying repository.
type CachedRepository struct {
	next   Repository
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	log    *zap.Logger
}

// NewCachedRepository wraps next. client may be nil, in which case only request coalescing applies.
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedRepository{next: next, client: client, ttl: ttl, log: log}
}

// GetByDomain returns the cached tenant for host or loads it.
func (c *CachedRepository) GetByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	if t := c.readCache(ctx, host); t != nil {
		return t, nil
	}
	v, err, _ := c.group.Do(host, func() (interface{}, error) {
		t, err := c.next.GetByDomain(ctx, host)
		if err != nil || t == nil {
			return t, err
		}
		c.writeCache(ctx, host, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	t, _ := v.(*domain.Tenant)
	return t, nil
}

// GetByKey is not cached; it only runs on the dev-host fallback path.
func (c *CachedRepository) GetByKey(ctx context.Context, key string) (*domain.Tenant, error) {
	return c.next.GetByKey(ctx, key)
}

// Invalidate drops the cached entry for host.
func (c *CachedRepository) Invalidate(ctx context.Context, host string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKeyPrefix+host).Err()
}

func (c *CachedRepository) readCache(ctx context.Context, host string) *domain.Tenant {
	if c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+host).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("tenant cache read failed", zap.String("host", host), zap.Error(err))
		}
		return nil
	}
	var t domain.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil
	}
	return &t
}

func (c *CachedRepository) writeCache(ctx context.Context, host string, t *domain.Tenant) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+host, raw, c.ttl).Err(); err != nil {
		c.log.Warn("tenant cache write failed", zap.String("host", host), zap.Error(err))
	}
}
