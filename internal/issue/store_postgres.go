package issue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// PostgresStore delegates all serialization to row-level locks and unique
// constraints: votes/watchers carry a UNIQUE (issue_id, user_id) pair, and a
// partial unique index allows at most one approved solution per issue. The
// application layer never takes its own locks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const issueColumns = `id, title, description, category, status, vote_count, watcher_count,
	author_id, department_id, location, image_url, created_at, resolved_at, resolved_by`

func (s *PostgresStore) CreateIssue(ctx context.Context, issue Issue) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issues (id, title, description, category, status, vote_count, watcher_count,
				author_id, department_id, location, image_url, created_at)
			VALUES ($1, $2, $3, $4, $5, 0, 1, $6, NULLIF($7, ''), $8, $9, $10)
		`,
			uuid.UUID(issue.ID), issue.Title, issue.Description, string(issue.Category),
			string(issue.Status), uuid.UUID(issue.AuthorID), issue.DepartmentID,
			issue.Location, issue.ImageURL, issue.CreatedAt,
		)
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		// The author watches their own issue from the start; watcher_count
		// starts at 1 to match.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO issue_watchers (issue_id, user_id, created_at) VALUES ($1, $2, $3)
		`, uuid.UUID(issue.ID), uuid.UUID(issue.AuthorID), issue.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert author watcher: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetIssue(ctx context.Context, issueID id.IssueID) (Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, uuid.UUID(issueID))
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter ListFilter) ([]Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.SortByVotes {
		query += " ORDER BY vote_count DESC, created_at DESC"
	} else {
		query += " ORDER BY created_at DESC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *PostgresStore) DeleteIssue(ctx context.Context, issueID id.IssueID) (Issue, error) {
	// Dependents cascade via foreign keys.
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM issues WHERE id = $1 RETURNING `+issueColumns, uuid.UUID(issueID))
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Issue{}, fmt.Errorf("delete issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) ToggleVote(ctx context.Context, issueID id.IssueID, userID id.UserID) (ToggleResult, error) {
	return s.toggleMembership(ctx, issueID, userID, "issue_votes", "vote_count")
}

func (s *PostgresStore) ToggleWatch(ctx context.Context, issueID id.IssueID, userID id.UserID) (ToggleResult, error) {
	return s.toggleMembership(ctx, issueID, userID, "issue_watchers", "watcher_count")
}

// toggleMembership flips a (issue, user) membership row and refreshes the
// denormalized count from row presence, all in one transaction. ON CONFLICT
// DO NOTHING makes a concurrent duplicate insert a no-op instead of an error,
// so double-clicks collapse to a single state change.
func (s *PostgresStore) toggleMembership(ctx context.Context, issueID id.IssueID, userID id.UserID, table, countColumn string) (ToggleResult, error) {
	var result ToggleResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		insert, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (issue_id, user_id, created_at) VALUES ($1, $2, now())
			ON CONFLICT (issue_id, user_id) DO NOTHING
		`, table), uuid.UUID(issueID), uuid.UUID(userID))
		if err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		inserted, err := insert.RowsAffected()
		if err != nil {
			return fmt.Errorf("membership rows affected: %w", err)
		}

		if inserted == 1 {
			result.Active = true
		} else {
			// Row already existed: this toggle removes it.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
				DELETE FROM %s WHERE issue_id = $1 AND user_id = $2
			`, table), uuid.UUID(issueID), uuid.UUID(userID)); err != nil {
				return fmt.Errorf("delete membership: %w", err)
			}
			result.Active = false
		}

		// Re-derive the canonical count from row presence rather than
		// incrementing, so a retried toggle can never drift the counter.
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			UPDATE issues
			SET %s = (SELECT COUNT(*) FROM %s WHERE issue_id = $1)
			WHERE id = $1
			RETURNING %s
		`, countColumn, table, countColumn), uuid.UUID(issueID)).Scan(&result.Count)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("refresh count: %w", err)
		}
		return nil
	})
	if err != nil {
		// A membership insert against a deleted issue violates the FK.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ToggleResult{}, sentinel.ErrNotFound
		}
		return ToggleResult{}, err
	}
	return result, nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, issueID id.IssueID, expected, next Status, update Update) (Issue, error) {
	var issue Issue
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var resolvedAt, resolvedBy any
		if next == StatusResolved {
			resolvedAt = update.CreatedAt
			resolvedBy = uuid.UUID(update.AuthorID)
		}
		row := tx.QueryRowContext(ctx, `
			UPDATE issues
			SET status = $3,
				resolved_at = COALESCE($4, resolved_at),
				resolved_by = COALESCE($5, resolved_by)
			WHERE id = $1 AND status = $2
			RETURNING `+issueColumns,
			uuid.UUID(issueID), string(expected), string(next), resolvedAt, resolvedBy)

		var err error
		issue, err = scanIssue(row)
		if errors.Is(err, sql.ErrNoRows) {
			// Row missing entirely, or the status moved under us.
			var exists bool
			if checkErr := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)`, uuid.UUID(issueID),
			).Scan(&exists); checkErr != nil {
				return fmt.Errorf("check issue: %w", checkErr)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrInvalidState
		}
		if err != nil {
			return fmt.Errorf("transition status: %w", err)
		}

		// The audit update lands in the same transaction: a status change
		// without its companion update row would be a correctness bug.
		if err := insertUpdate(ctx, tx, update); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Issue{}, err
	}
	return issue, nil
}

func (s *PostgresStore) AddComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issue_comments (id, issue_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(comment.ID), uuid.UUID(comment.IssueID), uuid.UUID(comment.AuthorID),
		comment.Content, comment.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, issueID id.IssueID) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author_id, content, created_at
		FROM issue_comments WHERE issue_id = $1 ORDER BY created_at
	`, uuid.UUID(issueID))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var (
			comment          Comment
			rawID, rawIssue  uuid.UUID
			rawAuthor        uuid.UUID
		)
		if err := rows.Scan(&rawID, &rawIssue, &rawAuthor, &comment.Content, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comment.ID = id.CommentID(rawID)
		comment.IssueID = id.IssueID(rawIssue)
		comment.AuthorID = id.UserID(rawAuthor)
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) AddUpdate(ctx context.Context, update Update) error {
	err := insertUpdateExec(ctx, s.db, update)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
	}
	return err
}

func (s *PostgresStore) ListUpdates(ctx context.Context, issueID id.IssueID) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author_id, content, type, created_at
		FROM issue_updates WHERE issue_id = $1 ORDER BY created_at
	`, uuid.UUID(issueID))
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	var updates []Update
	for rows.Next() {
		var (
			update          Update
			rawID, rawIssue uuid.UUID
			rawAuthor       uuid.UUID
			updateType      string
		)
		if err := rows.Scan(&rawID, &rawIssue, &rawAuthor, &update.Content, &updateType, &update.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		update.ID = id.UpdateID(rawID)
		update.IssueID = id.IssueID(rawIssue)
		update.AuthorID = id.UserID(rawAuthor)
		update.Type = UpdateType(updateType)
		updates = append(updates, update)
	}
	return updates, rows.Err()
}

func (s *PostgresStore) AddSolution(ctx context.Context, solution Solution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO solutions (id, issue_id, proposed_by, title, description, estimated_cost, status, vote_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
	`, uuid.UUID(solution.ID), uuid.UUID(solution.IssueID), uuid.UUID(solution.ProposedBy),
		solution.Title, solution.Description, solution.EstimatedCost, string(solution.Status),
		solution.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert solution: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSolution(ctx context.Context, solutionID id.SolutionID) (Solution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE id = $1`, uuid.UUID(solutionID))
	solution, err := scanSolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Solution{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Solution{}, fmt.Errorf("get solution: %w", err)
	}
	return solution, nil
}

func (s *PostgresStore) ListSolutions(ctx context.Context, issueID id.IssueID) ([]Solution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+solutionColumns+` FROM solutions WHERE issue_id = $1 ORDER BY created_at`,
		uuid.UUID(issueID))
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	defer rows.Close()

	var solutions []Solution
	for rows.Next() {
		solution, err := scanSolution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solution: %w", err)
		}
		solutions = append(solutions, solution)
	}
	return solutions, rows.Err()
}

func (s *PostgresStore) ToggleSolutionVote(ctx context.Context, solutionID id.SolutionID, userID id.UserID) (ToggleResult, error) {
	var result ToggleResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		insert, err := tx.ExecContext(ctx, `
			INSERT INTO solution_votes (solution_id, user_id, created_at) VALUES ($1, $2, now())
			ON CONFLICT (solution_id, user_id) DO NOTHING
		`, uuid.UUID(solutionID), uuid.UUID(userID))
		if err != nil {
			return fmt.Errorf("insert solution vote: %w", err)
		}
		inserted, err := insert.RowsAffected()
		if err != nil {
			return fmt.Errorf("solution vote rows affected: %w", err)
		}
		if inserted == 1 {
			result.Active = true
		} else {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM solution_votes WHERE solution_id = $1 AND user_id = $2`,
				uuid.UUID(solutionID), uuid.UUID(userID)); err != nil {
				return fmt.Errorf("delete solution vote: %w", err)
			}
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE solutions
			SET vote_count = (SELECT COUNT(*) FROM solution_votes WHERE solution_id = $1)
			WHERE id = $1
			RETURNING vote_count
		`, uuid.UUID(solutionID)).Scan(&result.Count)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("refresh solution vote count: %w", err)
		}
		return nil
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ToggleResult{}, sentinel.ErrNotFound
		}
		return ToggleResult{}, err
	}
	return result, nil
}

func (s *PostgresStore) ApproveSolution(ctx context.Context, issueID id.IssueID, solutionID id.SolutionID) (Solution, *Solution, error) {
	var approved Solution
	var superseded *Solution
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// Demote first, then approve: the partial unique index on
		// (issue_id) WHERE status = 'approved' stays satisfied at commit and
		// concurrent approvals serialize on the demoted row's lock.
		row := tx.QueryRowContext(ctx, `
			UPDATE solutions SET status = 'proposed'
			WHERE issue_id = $1 AND status = 'approved' AND id <> $2
			RETURNING `+solutionColumns,
			uuid.UUID(issueID), uuid.UUID(solutionID))
		prior, err := scanSolution(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Nothing to supersede.
		case err != nil:
			return fmt.Errorf("supersede solution: %w", err)
		default:
			superseded = &prior
		}

		row = tx.QueryRowContext(ctx, `
			UPDATE solutions SET status = 'approved'
			WHERE id = $1 AND issue_id = $2
			RETURNING `+solutionColumns,
			uuid.UUID(solutionID), uuid.UUID(issueID))
		approved, err = scanSolution(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("approve solution: %w", err)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Solution{}, nil, sentinel.ErrConflict
		}
		return Solution{}, nil, err
	}
	return approved, superseded, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUpdate(ctx context.Context, tx *sql.Tx, update Update) error {
	return insertUpdateExec(ctx, tx, update)
}

func insertUpdateExec(ctx context.Context, db execer, update Update) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO issue_updates (id, issue_id, author_id, content, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(update.ID), uuid.UUID(update.IssueID), uuid.UUID(update.AuthorID),
		update.Content, string(update.Type), update.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert update: %w", err)
	}
	return nil
}

const solutionColumns = `id, issue_id, proposed_by, title, description, estimated_cost, status, vote_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (Issue, error) {
	var (
		issue      Issue
		rawID      uuid.UUID
		rawAuthor  uuid.UUID
		category   string
		status     string
		department sql.NullString
		location   sql.NullString
		imageURL   sql.NullString
		resolvedAt sql.NullTime
		resolvedBy *uuid.UUID
	)
	err := row.Scan(&rawID, &issue.Title, &issue.Description, &category, &status,
		&issue.VoteCount, &issue.WatcherCount, &rawAuthor, &department, &location,
		&imageURL, &issue.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		return Issue{}, err
	}
	issue.ID = id.IssueID(rawID)
	issue.AuthorID = id.UserID(rawAuthor)
	issue.Category = Category(category)
	issue.Status = Status(status)
	issue.DepartmentID = department.String
	issue.Location = location.String
	issue.ImageURL = imageURL.String
	if resolvedAt.Valid {
		issue.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy != nil {
		by := id.UserID(*resolvedBy)
		issue.ResolvedBy = &by
	}
	return issue, nil
}

func scanSolution(row rowScanner) (Solution, error) {
	var (
		solution   Solution
		rawID      uuid.UUID
		rawIssue   uuid.UUID
		rawUser    uuid.UUID
		status     string
	)
	err := row.Scan(&rawID, &rawIssue, &rawUser, &solution.Title, &solution.Description,
		&solution.EstimatedCost, &status, &solution.VoteCount, &solution.CreatedAt)
	if err != nil {
		return Solution{}, err
	}
	solution.ID = id.SolutionID(rawID)
	solution.IssueID = id.IssueID(rawIssue)
	solution.ProposedBy = id.UserID(rawUser)
	solution.Status = SolutionStatus(status)
	return solution, nil
}
