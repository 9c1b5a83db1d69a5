package issue

import (
	"context"

	id "civicdesk/pkg/domain"
)

// Store holds the durable issue state. Every counter mutation is a single
// atomic store-side operation returning the canonical count; callers never
// read-modify-write counts. Implementations return sentinel errors:
// ErrNotFound for missing rows, ErrInvalidState for illegal transitions lost
// to a concurrent writer.
type Store interface {
	CreateIssue(ctx context.Context, issue Issue) error
	GetIssue(ctx context.Context, issueID id.IssueID) (Issue, error)
	ListIssues(ctx context.Context, filter ListFilter) ([]Issue, error)
	// DeleteIssue removes the issue and its dependents, returning the deleted
	// row for the change feed and audit trail.
	DeleteIssue(ctx context.Context, issueID id.IssueID) (Issue, error)

	// ToggleVote flips the (issue, user) vote membership and returns the new
	// canonical state. Guarded by the unique pair constraint so concurrent
	// double-clicks collapse to one state change.
	ToggleVote(ctx context.Context, issueID id.IssueID, userID id.UserID) (ToggleResult, error)
	// ToggleWatch is symmetric to ToggleVote for watchers.
	ToggleWatch(ctx context.Context, issueID id.IssueID, userID id.UserID) (ToggleResult, error)

	// TransitionStatus performs a compare-and-swap from expected to next and
	// appends the status-change update in the same transaction. Partial
	// application is impossible: either both happen or neither.
	TransitionStatus(ctx context.Context, issueID id.IssueID, expected, next Status, update Update) (Issue, error)

	AddComment(ctx context.Context, comment Comment) error
	ListComments(ctx context.Context, issueID id.IssueID) ([]Comment, error)

	AddUpdate(ctx context.Context, update Update) error
	ListUpdates(ctx context.Context, issueID id.IssueID) ([]Update, error)

	AddSolution(ctx context.Context, solution Solution) error
	GetSolution(ctx context.Context, solutionID id.SolutionID) (Solution, error)
	ListSolutions(ctx context.Context, issueID id.IssueID) ([]Solution, error)
	ToggleSolutionVote(ctx context.Context, solutionID id.SolutionID, userID id.UserID) (ToggleResult, error)

	// ApproveSolution marks the chosen solution approved and atomically
	// reverts any previously approved solution on the same issue to proposed.
	// The returned superseded solution is nil when none existed.
	ApproveSolution(ctx context.Context, issueID id.IssueID, solutionID id.SolutionID) (approved Solution, superseded *Solution, err error)
}
