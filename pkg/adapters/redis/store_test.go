package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/keystone/pkg/adapters/redis"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	store := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	ports.RunResponseStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	_, err := store.Write(ctx, "survey:owner@firm.com:1", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:log:survey:owner@firm.com:1"), "Expected list with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	keys, err := store.Keys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"survey:owner@firm.com:1"}, keys)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, mr := newStore(t, redis.WithTTL(time.Second), redis.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := store.Write(ctx, "k", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	keys, err := store.Keys(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	mr.FastForward(2 * time.Second)
	now = now.Add(2 * time.Second)

	_, err = store.Write(ctx, "fresh", json.RawMessage(`{"a":2}`))
	require.NoError(t, err)

	entries, err := store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, entries)

	keys, err = store.Keys(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, keys, "expired keys leave the index")
	assert.False(t, mr.Exists("keystone:responses:log:k"))
}

func TestRedisStore_MalformedEntry(t *testing.T) {
	store, mr := newStore(t)
	_, err := mr.Lpush("keystone:responses:log:bad", "{not json")
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := store.Write(ctx, "k", json.RawMessage(`{}`))
	assert.Error(t, err)
	assert.Error(t, store.Ping(ctx))
}

func TestNewFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := redis.NewFromURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))

	_, err = redis.NewFromURL("http://nope")
	assert.Error(t, err)
}
