package consent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
)

// PostgresStore persists consent decisions append-only; revocation marks the
// row rather than deleting it, preserving the trail.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_records (id, user_id, requirement_type, version, accepted, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		uuid.UUID(record.UserID),
		string(record.Type),
		record.Version,
		record.Accepted,
		record.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("save consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, requirement_type, version, accepted, decided_at, revoked_at
		FROM consent_records
		WHERE user_id = $1
		ORDER BY decided_at
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record  Record
			rawUser uuid.UUID
			reqType string
			revoked sql.NullTime
		)
		if err := rows.Scan(&rawUser, &reqType, &record.Version, &record.Accepted, &record.DecidedAt, &revoked); err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		record.UserID = id.UserID(rawUser)
		record.Type = RequirementType(reqType)
		if revoked.Valid {
			record.RevokedAt = &revoked.Time
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Revoke(ctx context.Context, userID id.UserID, reqType RequirementType, revokedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE consent_records
		SET revoked_at = $3
		WHERE user_id = $1 AND requirement_type = $2 AND revoked_at IS NULL
	`, uuid.UUID(userID), string(reqType), revokedAt)
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	return nil
}
