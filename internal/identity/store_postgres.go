package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, display_name, email, role, verification_status, department_id, created_at`

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID) (Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		uuid.UUID(userID),
	)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) Save(ctx context.Context, profile Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, email, role, verification_status, department_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			verification_status = EXCLUDED.verification_status,
			department_id = EXCLUDED.department_id
	`,
		uuid.UUID(profile.ID),
		profile.DisplayName,
		profile.Email,
		string(profile.Role),
		string(profile.Verification),
		profile.DepartmentID,
		profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetVerification(ctx context.Context, userID id.UserID, status id.VerificationStatus) (id.VerificationStatus, error) {
	var previous string
	err := s.db.QueryRowContext(ctx, `
		UPDATE profiles p
		SET verification_status = $2
		FROM (SELECT verification_status FROM profiles WHERE id = $1 AND role = 'official' FOR UPDATE) prev
		WHERE p.id = $1
		RETURNING prev.verification_status
	`, uuid.UUID(userID), string(status)).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the user does not exist or is not an official; disambiguate.
		var exists bool
		if checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, uuid.UUID(userID),
		).Scan(&exists); checkErr != nil {
			return "", fmt.Errorf("check profile: %w", checkErr)
		}
		if !exists {
			return "", sentinel.ErrNotFound
		}
		return "", sentinel.ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("set verification: %w", err)
	}
	return id.VerificationStatus(previous), nil
}

func (s *PostgresStore) ListPendingOfficials(ctx context.Context) ([]Profile, error) {
	return s.list(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE role = 'official' AND verification_status = 'pending' ORDER BY created_at`)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Profile, error) {
	return s.list(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		profile      Profile
		rawID        uuid.UUID
		role         string
		verification string
		department   sql.NullString
	)
	if err := row.Scan(&rawID, &profile.DisplayName, &profile.Email, &role, &verification, &department, &profile.CreatedAt); err != nil {
		return Profile{}, err
	}
	profile.ID = id.UserID(rawID)
	profile.Role = id.Role(role)
	profile.Verification = id.VerificationStatus(verification)
	profile.DepartmentID = department.String
	return profile, nil
}
