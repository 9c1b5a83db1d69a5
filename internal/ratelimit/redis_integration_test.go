//go:build integration

package ratelimit_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"civicdesk/internal/ratelimit"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/testutil/containers"
)

// These tests exercise the sliding window against a real Redis, where the
// pipeline and key expiry behavior differ from miniredis.

func TestRedisLimiterEnforcesLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.NewLimiter(ratelimit.NewRedisBucketStore(rc.Client), 3, time.Minute, logger)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := limiter.AllowIssueCreate(ctx, "actor-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 3-i-1, result.Remaining)
	}

	result, err := limiter.AllowIssueCreate(ctx, "actor-a")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeRateLimited))
	assert.False(t, result.Allowed)

	// A different actor has an independent bucket.
	other, err := limiter.AllowIssueCreate(ctx, "actor-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestRedisLimiterNeverOverAdmitsUnderConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	const limit = 10
	limiter, err := ratelimit.NewLimiter(ratelimit.NewRedisBucketStore(rc.Client), limit, time.Minute, logger)
	require.NoError(t, err)

	var group errgroup.Group
	allowed := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		group.Go(func() error {
			result, err := limiter.AllowIssueCreate(ctx, "actor-burst")
			if err != nil {
				if dErrors.Is(err, dErrors.CodeRateLimited) {
					return nil
				}
				return err
			}
			if result.Allowed {
				allowed <- struct{}{}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	close(allowed)

	count := 0
	for range allowed {
		count++
	}
	if count > limit {
		t.Fatalf("admitted %d requests, limit is %d", count, limit)
	}
	assert.Equal(t, limit, count, fmt.Sprintf("expected exactly %d admissions", limit))
}
