package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBucketStore_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := NewInMemoryBucketStore().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})
	advance := func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
	}

	const limit = 3
	window := time.Hour

	for i := 0; i < limit; i++ {
		result, err := store.Allow(ctx, "user-a", limit, window)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, limit-i-1, result.Remaining)
	}

	t.Run("fourth attempt inside window is denied", func(t *testing.T) {
		result, err := store.Allow(ctx, "user-a", limit, window)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
	})

	t.Run("other actors are unaffected", func(t *testing.T) {
		result, err := store.Allow(ctx, "user-b", limit, window)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("window slides rather than resets", func(t *testing.T) {
		// 40 minutes on, the first event is still inside the rolling hour.
		advance(40 * time.Minute)
		result, err := store.Allow(ctx, "user-a", limit, window)
		require.NoError(t, err)
		assert.False(t, result.Allowed)

		// 21 more minutes and the first event has slid out.
		advance(21 * time.Minute)
		result, err = store.Allow(ctx, "user-a", limit, window)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})
}

func TestInMemoryBucketStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryBucketStore()

	for i := 0; i < 2; i++ {
		_, err := store.Allow(ctx, "user-a", 2, time.Hour)
		require.NoError(t, err)
	}
	result, err := store.Allow(ctx, "user-a", 2, time.Hour)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	require.NoError(t, store.Reset(ctx, "user-a"))
	result, err = store.Allow(ctx, "user-a", 2, time.Hour)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInMemoryBucketStore_ConcurrentAllows(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryBucketStore()
	const limit = 10
	const attempts = 50

	var wg sync.WaitGroup
	allowed := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.Allow(ctx, "user-a", limit, time.Hour)
			require.NoError(t, err)
			allowed <- result.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, limit, count, "exactly limit slots granted under contention")
}
