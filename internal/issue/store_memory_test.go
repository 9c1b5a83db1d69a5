package issue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

func seedIssue(t *testing.T, store *InMemoryStore) Issue {
	t.Helper()
	issue := Issue{
		ID:           id.NewIssueID(),
		Title:        "Streetlight out",
		Description:  "Corner of 5th and Main",
		Category:     CategoryElectricity,
		Status:       StatusOpen,
		WatcherCount: 1,
		AuthorID:     id.NewUserID(),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.CreateIssue(context.Background(), issue))
	return issue
}

func TestTransitionStatusChecksExpected(t *testing.T) {
	store := NewInMemoryStore()
	issue := seedIssue(t, store)
	ctx := context.Background()

	update := Update{
		ID: id.NewUpdateID(), IssueID: issue.ID, AuthorID: id.NewUserID(),
		Content: "working on it", Type: UpdateTypeStatusChange, CreatedAt: time.Now().UTC(),
	}

	// Stale expectation: the caller read "in_progress" that never was.
	_, err := store.TransitionStatus(ctx, issue.ID, StatusInProgress, StatusResolved, update)
	require.ErrorIs(t, err, sentinel.ErrInvalidState)

	updates, err := store.ListUpdates(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, updates, "failed transition must not append an update")

	got, err := store.TransitionStatus(ctx, issue.ID, StatusOpen, StatusInProgress, update)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	updates, err = store.ListUpdates(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 1)
}

func TestTransitionStatusMissingIssue(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.TransitionStatus(context.Background(), id.NewIssueID(), StatusOpen, StatusInProgress, Update{})
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteIssueCascades(t *testing.T) {
	store := NewInMemoryStore()
	issue := seedIssue(t, store)
	ctx := context.Background()

	user := id.NewUserID()
	_, err := store.ToggleVote(ctx, issue.ID, user)
	require.NoError(t, err)
	require.NoError(t, store.AddComment(ctx, Comment{
		ID: id.NewCommentID(), IssueID: issue.ID, AuthorID: user,
		Content: "same", CreatedAt: time.Now().UTC(),
	}))
	solution := Solution{
		ID: id.NewSolutionID(), IssueID: issue.ID, ProposedBy: user,
		Title: "Replace bulb", Status: SolutionProposed, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AddSolution(ctx, solution))

	deleted, err := store.DeleteIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.ID, deleted.ID)

	_, err = store.GetIssue(ctx, issue.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.GetSolution(ctx, solution.ID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// A vote against the deleted issue no longer resolves.
	_, err = store.ToggleVote(ctx, issue.ID, id.NewUserID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListIssuesFilterAndSort(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := seedIssue(t, store)
	time.Sleep(time.Millisecond)
	second := seedIssue(t, store)

	for range 3 {
		_, err := store.ToggleVote(ctx, first.ID, id.NewUserID())
		require.NoError(t, err)
	}

	byVotes, err := store.ListIssues(ctx, ListFilter{SortByVotes: true})
	require.NoError(t, err)
	require.Len(t, byVotes, 2)
	assert.Equal(t, first.ID, byVotes[0].ID)
	assert.Equal(t, 3, byVotes[0].VoteCount)

	byRecency, err := store.ListIssues(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, byRecency, 2)
	assert.Equal(t, second.ID, byRecency[0].ID)

	closedOnly, err := store.ListIssues(ctx, ListFilter{Status: StatusClosed})
	require.NoError(t, err)
	assert.Empty(t, closedOnly)
}

func TestCreateIssueDuplicateIDConflicts(t *testing.T) {
	store := NewInMemoryStore()
	issue := seedIssue(t, store)
	err := store.CreateIssue(context.Background(), issue)
	require.ErrorIs(t, err, sentinel.ErrConflict)
}
