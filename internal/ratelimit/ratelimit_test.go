package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civicdesk/pkg/domain-errors"
)

func TestLimiter_AllowIssueCreate(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := NewLimiter(NewInMemoryBucketStore(), 2, time.Hour, logger)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		result, err := limiter.AllowIssueCreate(ctx, "actor-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.AllowIssueCreate(ctx, "actor-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
	assert.False(t, result.Allowed)

	// Other actors keep their own window.
	_, err = limiter.AllowIssueCreate(ctx, "actor-2")
	assert.NoError(t, err)
}

func TestNewLimiter_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewLimiter(nil, 5, time.Hour, logger)
	assert.Error(t, err)

	_, err = NewLimiter(NewInMemoryBucketStore(), 0, time.Hour, logger)
	assert.Error(t, err)

	_, err = NewLimiter(NewInMemoryBucketStore(), 5, 0, logger)
	assert.Error(t, err)
}
