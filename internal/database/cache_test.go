package database

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	_, found, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	value := []byte(`[{"product_id":1}]`)
	require.NoError(t, cache.Set(ctx, "k", value, time.Hour))
	value[0] = 'X'

	got, found, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `[{"product_id":1}]`, string(got))

	got[0] = 'Y'
	again, _, _ := cache.Get(ctx, "k")
	assert.Equal(t, byte('['), again[0])

	now = now.Add(time.Hour)
	_, found, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())

	require.NoError(t, cache.Set(ctx, "forever", []byte("[]"), 0))
	now = now.Add(1000 * time.Hour)
	_, found, _ = cache.Get(ctx, "forever")
	assert.True(t, found)
}

func TestRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	cache := NewRedisCache(client)
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "rec:trending:T1:window:720h0m0s:10")
	assert.Error(t, err)
	assert.False(t, found)

	assert.Error(t, cache.Set(ctx, "k", []byte("[]"), time.Minute))
}
