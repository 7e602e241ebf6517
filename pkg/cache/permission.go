package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long an affirmative authorization outcome stays cached
const DefaultTTL = 300000 * time.Millisecond

// PermissionCache fronts expensive authorization lookups with a Store.
//
// Only affirmative outcomes are cached through RememberTrue: a new grant is
// effective immediately, while a revocation may lag by at most the TTL.
// Backend errors never fail a check; reads degrade to a miss and writes are
// dropped.
type PermissionCache struct {
	store   Store
	ttl     time.Duration
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	group   singleflight.Group
}

// NewPermissionCache creates a cache over store. A non-positive ttl selects DefaultTTL.
func NewPermissionCache(store Store, ttl time.Duration, logger logrus.FieldLogger, metrics *observability.Metrics) *PermissionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &PermissionCache{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// TTL returns the expiry applied to cached outcomes
func (c *PermissionCache) TTL() time.Duration {
	return c.ttl
}

// Get returns a cached boolean outcome
func (c *PermissionCache) Get(ctx context.Context, key string) (value bool, found bool) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.RecordCacheError("get")
		c.logger.WithError(err).WithField("key", key).Warn("permission cache read failed, recomputing")
		found = false
	}
	c.metrics.RecordCacheLookup(Namespace(key), found)
	if !found {
		return false, false
	}

	value, err = strconv.ParseBool(raw)
	if err != nil {
		c.logger.WithField("key", key).Warn("discarding malformed permission cache entry")
		_ = c.store.Delete(ctx, key)
		return false, false
	}
	return value, true
}

// Set stores an outcome with the configured TTL. Callers decide which
// outcomes may be cached.
func (c *PermissionCache) Set(ctx context.Context, key string, value bool) {
	if err := c.store.Set(ctx, key, strconv.FormatBool(value), c.ttl); err != nil {
		c.metrics.RecordCacheError("set")
		c.logger.WithError(err).WithField("key", key).Warn("permission cache write failed")
	}
}

// Invalidate drops a cached outcome
func (c *PermissionCache) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.RecordCacheError("delete")
		c.logger.WithError(err).WithField("key", key).Warn("permission cache delete failed")
	}
}

// RememberTrue returns a cached true for key, or runs compute and caches its
// result only when it is true. A false result is never cached, so every
// denial reaches compute. Concurrent computations of the same key share one
// call. cached reports whether the value came from the cache.
func (c *PermissionCache) RememberTrue(ctx context.Context, key string, compute func(context.Context) (bool, error)) (value bool, cached bool, err error) {
	if v, found := c.Get(ctx, key); found && v {
		return true, true, nil
	}

	// the shared call outlives any single caller's cancellation
	shared := context.WithoutCancel(ctx)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		ok, err := compute(shared)
		if err != nil {
			return false, err
		}
		if ok {
			c.Set(shared, key, true)
		}
		return ok, nil
	})
	if err != nil {
		return false, false, err
	}
	return result.(bool), false, nil
}
