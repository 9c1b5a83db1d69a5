package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisBucketStore, func(time.Duration)) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := NewRedisBucketStore(client).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})
	advance := func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
		mr.FastForward(d)
	}
	return store, advance
}

func TestRedisBucketStore_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	store, advance := setupRedisStore(t)

	const limit = 3
	window := time.Hour

	for i := 0; i < limit; i++ {
		result, err := store.Allow(ctx, "user-a", limit, window)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "attempt %d", i)
	}

	result, err := store.Allow(ctx, "user-a", limit, window)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)

	// After the window slides past the first event, one slot opens.
	advance(61 * time.Minute)
	result, err = store.Allow(ctx, "user-a", limit, window)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisBucketStore_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	result, err := store.Allow(ctx, "user-a", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = store.Allow(ctx, "user-a", 1, time.Hour)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = store.Allow(ctx, "user-b", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisBucketStore_Reset(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t)

	_, err := store.Allow(ctx, "user-a", 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "user-a"))

	result, err := store.Allow(ctx, "user-a", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
