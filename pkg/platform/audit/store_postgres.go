package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
)

// PostgresStore persists audit events append-only. There is deliberately no
// delete path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	var actorID *uuid.UUID
	if !event.ActorID.IsNil() {
		raw := uuid.UUID(event.ActorID)
		actorID = &raw
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, target_type, target_id, before, after, outcome, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.New(),
		event.Timestamp,
		actorID,
		string(event.Action),
		event.TargetType,
		event.TargetID,
		nullJSON(event.Before),
		nullJSON(event.After),
		event.Outcome,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTarget(ctx context.Context, targetType, targetID string) ([]Event, error) {
	return s.list(ctx, `
		SELECT timestamp, actor_id, action, target_type, target_id, before, after, outcome, reason, request_id
		FROM audit_log
		WHERE target_type = $1 AND target_id = $2
		ORDER BY timestamp
	`, targetType, targetID)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Event, error) {
	return s.list(ctx, `
		SELECT timestamp, actor_id, action, target_type, target_id, before, after, outcome, reason, request_id
		FROM audit_log
		ORDER BY timestamp
	`)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event   Event
			actorID *uuid.UUID
			action  string
			before  []byte
			after   []byte
		)
		if err := rows.Scan(&event.Timestamp, &actorID, &action, &event.TargetType, &event.TargetID,
			&before, &after, &event.Outcome, &event.Reason, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if actorID != nil {
			event.ActorID = id.UserID(*actorID)
		}
		event.Action = Action(action)
		event.Before = before
		event.After = after
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
