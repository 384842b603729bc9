package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStore on it
func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, "session", ttl), mr
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "checkout_idempotency_key", []byte(`"abc"`)))

	raw, err := mr.Get("session:checkout_idempotency_key")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, raw)
	assert.Equal(t, time.Hour, mr.TTL("session:checkout_idempotency_key"))

	got, err := store.Get(ctx, "checkout_idempotency_key")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(got))

	require.NoError(t, store.Delete(ctx, "checkout_idempotency_key"))
	_, err = store.Get(ctx, "checkout_idempotency_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SessionExpiry(t *testing.T) {
	store, mr := setupTestRedis(t, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	mr.FastForward(31 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := setupTestRedis(t, time.Minute)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
