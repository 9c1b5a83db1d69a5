package audit

import (
	"context"
	"log/slog"
	"time"
)

// Trail buffers audit events on a channel so mutations never block on audit
// persistence. A dropped event is logged loudly; the mutation itself is
// already committed and must not roll back.
type Trail struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewTrail(buffer int, logger *slog.Logger) *Trail {
	return &Trail{inbox: make(chan Event, buffer), logger: logger}
}

// Record implements Recorder. Non-blocking: a full buffer drops the event
// rather than stalling the mutation path.
func (t *Trail) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case t.inbox <- event:
	default:
		t.logger.ErrorContext(ctx, "audit buffer full, event dropped",
			"action", string(event.Action),
			"target_type", event.TargetType,
			"target_id", event.TargetID,
		)
	}
}

// Run consumes buffered events and persists them until ctx is cancelled.
// Persistence failures are logged and retried once before giving up on that
// event; the worker itself keeps running.
func (t *Trail) Run(ctx context.Context, store Store) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-t.inbox:
			if err := store.Append(ctx, event); err != nil {
				t.logger.ErrorContext(ctx, "audit append failed, retrying",
					"action", string(event.Action),
					"error", err,
				)
				if err := store.Append(ctx, event); err != nil {
					t.logger.ErrorContext(ctx, "audit append failed permanently",
						"action", string(event.Action),
						"error", err,
					)
				}
			}
		}
	}
}
