package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (*brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (*brokenStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func (*brokenStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (*brokenStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func newRotator(t *testing.T, used cache.AtomicStore) (*Rotator, *TokenCodec) {
	t.Helper()
	codec, _ := newCodec(t)
	return NewRotator(codec, used, 0, 0, nil), codec
}

func memoryUsedStore(t *testing.T) cache.AtomicStore {
	t.Helper()
	store, err := cache.NewMemoryStore(100)
	require.NoError(t, err)
	return store
}

func TestRotator_SingleUse(t *testing.T) {
	rotator, _ := newRotator(t, memoryUsedStore(t))
	ctx := context.Background()

	pair, err := rotator.IssuePair(Grant{UserID: 1, ClientID: "app", Scopes: []string{"BOOKING_WRITE"}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	rotated, err := rotator.Rotate(ctx, pair.RefreshToken, "app", nil)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, "BOOKING_WRITE", rotated.Scope)

	_, err = rotator.Rotate(ctx, pair.RefreshToken, "app", nil)
	assert.ErrorIs(t, err, ErrRefreshTokenReused)
	assert.Equal(t, "refresh_token_revoked", err.Error())

	_, err = rotator.Rotate(ctx, rotated.RefreshToken, "app", nil)
	assert.NoError(t, err, "the rotated token is still redeemable once")
}

func TestRotator_SharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	codec, _ := newCodec(t)
	a := NewRotator(codec, cache.NewRedisStore(client, "gatehouse"), 0, 0, nil)
	b := NewRotator(codec, cache.NewRedisStore(client, "gatehouse"), 0, 0, nil)

	pair, err := a.IssuePair(Grant{UserID: 1, ClientID: "app"})
	require.NoError(t, err)

	_, err = a.Rotate(context.Background(), pair.RefreshToken, "app", nil)
	require.NoError(t, err)
	_, err = b.Rotate(context.Background(), pair.RefreshToken, "app", nil)
	assert.ErrorIs(t, err, ErrRefreshTokenReused)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Greater(t, mr.TTL(keys[0]), 29*24*time.Hour, "marker lives as long as the refresh token")
}

func TestRotator_ScopeNarrowing(t *testing.T) {
	rotator, codec := newRotator(t, memoryUsedStore(t))
	ctx := context.Background()
	grant := Grant{UserID: 1, ClientID: "app", Scopes: []string{"BOOKING_WRITE", "TEAM_READ"}}

	pair, err := rotator.IssuePair(grant)
	require.NoError(t, err)

	_, err = rotator.Rotate(ctx, pair.RefreshToken, "app", []string{"ORG_READ"})
	assert.ErrorIs(t, err, ErrScopeExpansion)

	narrowed, err := rotator.Rotate(ctx, pair.RefreshToken, "app", []string{"BOOKING_READ"})
	require.NoError(t, err, "rejected expansion must not consume the token")
	assert.Equal(t, "BOOKING_READ", narrowed.Scope)

	claims, err := codec.Parse(narrowed.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, ScopeClaim{"BOOKING_READ"}, claims.Scope)
}

func TestRotator_Rejections(t *testing.T) {
	rotator, _ := newRotator(t, memoryUsedStore(t))
	ctx := context.Background()

	pair, err := rotator.IssuePair(Grant{UserID: 1, ClientID: "app"})
	require.NoError(t, err)

	_, err = rotator.Rotate(ctx, pair.RefreshToken, "other-app", nil)
	assert.ErrorIs(t, err, ErrClientMismatch)

	_, err = rotator.Rotate(ctx, pair.AccessToken, "app", nil)
	assert.ErrorIs(t, err, ErrInvalidToken, "access tokens cannot be redeemed")

	_, err = rotator.Rotate(ctx, "garbage", "app", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRotator_StoreFailureFailsClosed(t *testing.T) {
	rotator, _ := newRotator(t, &brokenStore{})

	pair, err := rotator.IssuePair(Grant{UserID: 1, ClientID: "app"})
	require.NoError(t, err)

	_, err = rotator.Rotate(context.Background(), pair.RefreshToken, "app", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record refresh token use")
	assert.NotErrorIs(t, err, ErrRefreshTokenReused)
}
