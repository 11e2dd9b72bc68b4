package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	a, err := NewState()
	require.NoError(t, err)
	b, err := NewState()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestRedisStateStoreConsumesOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewStateStore(rdb, "oauth:state")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", time.Minute))
	assert.True(t, mr.Exists("oauth:state:s1"))

	ok, err := store.Consume(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStateStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewStateStore(rdb, "oauth:state")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "s1", time.Minute))
	mr.FastForward(2 * time.Minute)
	ok, err := store.Consume(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	assert.IsType(t, &MemoryStateStore{}, NewStateStore(nil, "x"))

	require.NoError(t, store.Save(ctx, "s1", time.Minute))
	require.NoError(t, store.Save(ctx, "s2", time.Minute))

	ok, err := store.Consume(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = store.Consume(ctx, "s1")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = store.Consume(ctx, "s2")
	assert.False(t, ok)

	ok, _ = store.Consume(ctx, "")
	assert.False(t, ok)
}
