package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestStatusCacheAgainstRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(ctx, rdb))

	cache := NewStatusCache(rdb)

	_, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	want := OrderStatus{OrderID: 5, UserID: "u-1", Status: "PAID", UpdatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	written, err := cache.Put(ctx, want)
	require.NoError(t, err)
	assert.True(t, written)
	got, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

	stale := OrderStatus{OrderID: 5, UserID: "u-1", Status: "PENDING", UpdatedAt: want.UpdatedAt.Add(-time.Minute)}
	written, err = cache.Put(ctx, stale)
	require.NoError(t, err)
	assert.False(t, written)
	got, _, err = cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "PAID", got.Status)

	newer := OrderStatus{OrderID: 5, UserID: "u-1", Status: "SHIPPED", UpdatedAt: want.UpdatedAt.Add(time.Minute)}
	written, err = cache.Put(ctx, newer)
	require.NoError(t, err)
	assert.True(t, written)
	got, _, err = cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "SHIPPED", got.Status)

	ttl, err := rdb.TTL(ctx, OrderStatusKey(5)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, TTLStatusCache)

	first, err := cache.MarkOnce(ctx, "projector", "e-1")
	require.NoError(t, err)
	assert.True(t, first)
	first, err = cache.MarkOnce(ctx, "projector", "e-1")
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, cache.Forget(ctx, "projector", "e-1"))
	first, err = cache.MarkOnce(ctx, "projector", "e-1")
	require.NoError(t, err)
	assert.True(t, first)
}
