package cache

import (
	"context"
	"time"
)

// Store is a shared key-value backend with per-key expiry.
//
// Get reports found=false for absent and expired keys. Implementations only
// return an error for backend failures; callers on read paths treat an
// error as a miss.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// AtomicStore is implemented by stores that can set a key only when absent
type AtomicStore interface {
	Store
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}
