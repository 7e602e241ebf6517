// Package cache provides the shared key-value store used for authorization
// results and auto-lock counters.
//
// Two Store implementations are available: RedisStore for multi-instance
// deployments and MemoryStore for single-instance deployments and tests.
// PermissionCache layers the caching policy for authorization outcomes on
// top of a Store:
//
//	pc := cache.NewPermissionCache(store, cache.DefaultTTL, logger, metrics)
//	ok, cached, err := pc.RememberTrue(ctx, cache.PermissionKey(userID, orgID, perms), check)
//
// Only true outcomes are written, so a grant takes effect on the next
// request while a revocation can take up to the TTL to apply.
package cache
