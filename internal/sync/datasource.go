// Package sync keeps per-view state consistent with the server: one snapshot
// fetch on open, a change feed subscription afterwards, reconciliation by
// primary key, and teardown that releases the subscription. Views work
// identically against the live backend and the in-memory demo fixture.
package sync

import (
	"context"

	"civicdesk/internal/feed"
	"civicdesk/internal/issue"
	id "civicdesk/pkg/domain"
)

// Subscription is one live attachment to a change stream. The channel closes
// when the source drops the subscriber (lag) or the source shuts down; a view
// reacts by re-fetching, never by trusting stale local state.
type Subscription interface {
	C() <-chan feed.Event
	Table() feed.Table
	Close()
}

// DataSource is everything a view needs: consistent reads, mutations, and
// change streams. The live implementation fronts the engine and broker; the
// fixture implementation serves demo mode from memory with the same shapes.
type DataSource interface {
	FetchIssue(ctx context.Context, issueID id.IssueID) (issue.Issue, error)
	FetchIssues(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error)
	FetchComments(ctx context.Context, issueID id.IssueID) ([]issue.Comment, error)
	FetchUpdates(ctx context.Context, issueID id.IssueID) ([]issue.Update, error)
	FetchSolutions(ctx context.Context, issueID id.IssueID) ([]issue.Solution, error)

	ToggleVote(ctx context.Context, issueID id.IssueID) (issue.ToggleResult, error)
	ToggleWatch(ctx context.Context, issueID id.IssueID) (issue.ToggleResult, error)
	AddComment(ctx context.Context, issueID id.IssueID, content string) (issue.Comment, error)

	Subscribe(table feed.Table, filter feed.Filter) (Subscription, error)
}
