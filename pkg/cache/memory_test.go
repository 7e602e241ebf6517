package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newMemoryStore(t *testing.T, size int) (*MemoryStore, *fakeClock) {
	t.Helper()
	store, err := NewMemoryStore(size)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return store.WithClock(clock.Now), clock
}

func TestMemoryStore_Expiry(t *testing.T) {
	store, clock := newMemoryStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 5*time.Minute))

	clock.Advance(4 * time.Minute)
	val, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)

	clock.Advance(time.Minute)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "read at expiry is a miss")
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_NoTTL(t *testing.T) {
	store, clock := newMemoryStore(t, 10)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	clock.Advance(24 * time.Hour)

	_, found, _ := store.Get(ctx, "k")
	assert.True(t, found)
}

func TestMemoryStore_Eviction(t *testing.T) {
	store, _ := newMemoryStore(t, 2)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, store.Set(ctx, "b", "2", time.Minute))
	_, _, _ = store.Get(ctx, "a")
	require.NoError(t, store.Set(ctx, "c", "3", time.Minute))

	_, found, _ := store.Get(ctx, "b")
	assert.False(t, found, "least recently used key is evicted")
	_, found, _ = store.Get(ctx, "a")
	assert.True(t, found)
}

func TestMemoryStore_SetNX(t *testing.T) {
	store, clock := newMemoryStore(t, 10)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = store.SetNX(ctx, "k", "2", time.Minute)
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, _ = store.SetNX(ctx, "k", "3", time.Minute)
	assert.True(t, ok, "expired key can be claimed again")

	val, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "3", val)
}

func TestMemoryStore_Delete(t *testing.T) {
	store, _ := newMemoryStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "never-set"))

	_, found, _ := store.Get(ctx, "k")
	assert.False(t, found)
}
