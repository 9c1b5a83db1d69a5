// Package ratelimit provides the authoritative sliding-window limiter for
// issue creation. The browser may apply its own advisory window for UX; this
// check is the security boundary.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dErrors "civicdesk/pkg/domain-errors"
)

// Result reports the outcome of a limiter check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// BucketStore tracks request timestamps per key over a sliding window.
type BucketStore interface {
	// Allow records one event for key if the window still has room and
	// reports the canonical outcome.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}

// Limiter applies the issue-creation rate limit per actor.
type Limiter struct {
	buckets BucketStore
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

func NewLimiter(buckets BucketStore, limit int, window time.Duration, logger *slog.Logger) (*Limiter, error) {
	if buckets == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("limit and window must be positive")
	}
	return &Limiter{buckets: buckets, limit: limit, window: window, logger: logger}, nil
}

// AllowIssueCreate checks and consumes one slot for the actor. A denied check
// returns a coded rate-limited error carrying no slot consumption.
func (l *Limiter) AllowIssueCreate(ctx context.Context, actorID string) (*Result, error) {
	key := "issue_create:" + actorID
	result, err := l.buckets.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit check failed")
	}
	if !result.Allowed {
		l.logger.WarnContext(ctx, "issue creation rate limited",
			"actor_id", actorID,
			"limit", l.limit,
			"window_seconds", int(l.window.Seconds()),
		)
		return result, dErrors.New(dErrors.CodeRateLimited, "too many issues created, try again later")
	}
	return result, nil
}
