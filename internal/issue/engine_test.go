package issue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/ratelimit"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/audit"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *capturePublisher) Publish(event feed.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byTable(table feed.Table) []feed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []feed.Event
	for _, e := range p.events {
		if e.Table == table {
			out = append(out, e)
		}
	}
	return out
}

type engineFixture struct {
	engine  *Engine
	store   *InMemoryStore
	audit   *audit.InMemoryStore
	feed    *capturePublisher
	limiter *ratelimit.Limiter
}

func newEngineFixture(t *testing.T, createLimit int) *engineFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.NewLimiter(ratelimit.NewInMemoryBucketStore(), createLimit, time.Hour, logger)
	require.NoError(t, err)

	f := &engineFixture{
		store:   NewInMemoryStore(),
		audit:   audit.NewInMemoryStore(),
		feed:    &capturePublisher{},
		limiter: limiter,
	}
	f.engine = NewEngine(f.store, limiter, f.audit, f.feed, metrics.New(prometheus.NewRegistry()), logger)
	return f
}

func citizenActor() identity.Actor {
	return identity.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
}

func verifiedOfficial() identity.Actor {
	return identity.Actor{ID: id.NewUserID(), Role: id.RoleOfficial, Verification: id.VerificationVerified}
}

func pendingOfficial() identity.Actor {
	return identity.Actor{ID: id.NewUserID(), Role: id.RoleOfficial, Verification: id.VerificationPending}
}

func adminActor() identity.Actor {
	return identity.Actor{ID: id.NewUserID(), Role: id.RoleAdmin}
}

func mustCreateIssue(t *testing.T, f *engineFixture, author identity.Actor) Issue {
	t.Helper()
	issue, err := f.engine.CreateIssue(context.Background(), author, CreateIssueInput{
		Title:       "Pothole on Elm Street",
		Description: "Deep pothole near the intersection",
		Category:    CategoryRoads,
	})
	require.NoError(t, err)
	return issue
}

func TestCreateIssueAutoWatchesAuthor(t *testing.T) {
	f := newEngineFixture(t, 5)
	author := citizenActor()

	issue := mustCreateIssue(t, f, author)
	assert.Equal(t, StatusOpen, issue.Status)
	assert.Equal(t, 1, issue.WatcherCount)
	assert.Equal(t, 0, issue.VoteCount)

	// The author's auto-watch is a real row: toggling removes it.
	result, err := f.engine.ToggleWatch(context.Background(), author, issue.ID)
	require.NoError(t, err)
	assert.False(t, result.Active)
	assert.Equal(t, 0, result.Count)
}

func TestCreateIssueRateLimited(t *testing.T) {
	f := newEngineFixture(t, 2)
	author := citizenActor()

	mustCreateIssue(t, f, author)
	mustCreateIssue(t, f, author)

	_, err := f.engine.CreateIssue(context.Background(), author, CreateIssueInput{
		Title:       "Third issue",
		Description: "One too many",
		Category:    CategoryOther,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))

	// A different actor still has a full window.
	mustCreateIssue(t, f, citizenActor())
}

func TestToggleVoteIsIdempotentPerClick(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	voter := citizenActor()

	on, err := f.engine.ToggleVote(context.Background(), voter, issue.ID)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.Equal(t, 1, on.Count)

	off, err := f.engine.ToggleVote(context.Background(), voter, issue.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Equal(t, 0, off.Count)
}

func TestConcurrentVotersNeverCorruptCount(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	const voters = 50
	actors := make([]identity.Actor, voters)
	for i := range actors {
		actors[i] = citizenActor()
	}

	var wg sync.WaitGroup
	for _, actor := range actors {
		wg.Add(1)
		go func(a identity.Actor) {
			defer wg.Done()
			_, err := f.engine.ToggleVote(context.Background(), a, issue.ID)
			assert.NoError(t, err)
		}(actor)
	}
	wg.Wait()

	got, err := f.engine.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, got.VoteCount)

	// Everyone un-votes; the count returns to exactly zero, never negative.
	for _, actor := range actors {
		wg.Add(1)
		go func(a identity.Actor) {
			defer wg.Done()
			_, err := f.engine.ToggleVote(context.Background(), a, issue.ID)
			assert.NoError(t, err)
		}(actor)
	}
	wg.Wait()

	got, err = f.engine.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.VoteCount)
}

func TestToggleVotePublishesCanonicalCount(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	_, err := f.engine.ToggleVote(context.Background(), citizenActor(), issue.ID)
	require.NoError(t, err)

	events := f.feed.byTable(feed.TableIssues)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, feed.OpUpdate, last.Op)
	assert.Equal(t, issue.ID.String(), last.IssueID)

	var row Issue
	require.NoError(t, json.Unmarshal(last.Row, &row))
	assert.Equal(t, 1, row.VoteCount)
}

func TestVoteRequiresAuthentication(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	_, err := f.engine.ToggleVote(context.Background(), identity.Actor{}, issue.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func TestStatusTransitionChain(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	official := verifiedOfficial()
	ctx := context.Background()

	for _, next := range []Status{StatusInProgress, StatusResolved, StatusClosed} {
		got, err := f.engine.TransitionStatus(ctx, official, issue.ID, next, "")
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
	}

	// Every transition appended its companion update row.
	updates, err := f.engine.ListUpdates(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, updates, 3)
	for _, update := range updates {
		assert.Equal(t, UpdateTypeStatusChange, update.Type)
	}

	got, err := f.engine.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, official.ID, *got.ResolvedBy)
}

func TestStatusTransitionSkipRejected(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	_, err := f.engine.TransitionStatus(context.Background(), verifiedOfficial(), issue.ID, StatusResolved, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := f.engine.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)

	// No partial application: the rejected transition left no update behind.
	updates, err := f.engine.ListUpdates(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestAdminMayOverrideTransitions(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	ctx := context.Background()

	_, err := f.engine.TransitionStatus(ctx, adminActor(), issue.ID, StatusClosed, "duplicate report")
	require.NoError(t, err)

	got, err := f.engine.TransitionStatus(ctx, adminActor(), issue.ID, StatusOpen, "reopened on appeal")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
}

func TestCitizenCannotTransitionStatus(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	_, err := f.engine.TransitionStatus(context.Background(), citizenActor(), issue.ID, StatusInProgress, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestPendingOfficialCannotPostUpdate(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	_, err := f.engine.PostUpdate(context.Background(), pendingOfficial(), issue.ID, "on it", UpdateTypeProgress)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeVerificationRequired))
}

func TestPostUpdateIsAudited(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	official := verifiedOfficial()
	ctx := context.Background()

	_, err := f.engine.PostUpdate(ctx, official, issue.ID, "crew dispatched", UpdateTypeProgress)
	require.NoError(t, err)

	entries, err := f.audit.ListByTarget(ctx, "issue", issue.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionUpdatePosted, entries[0].Action)
	assert.Equal(t, official.ID, entries[0].ActorID)
}

func TestSelectOfficialSolutionSupersedesPriorWinner(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	official := verifiedOfficial()
	ctx := context.Background()

	first, err := f.engine.ProposeSolution(ctx, citizenActor(), issue.ID, ProposeSolutionInput{
		Title: "Patch the asphalt", EstimatedCost: 120_00,
	})
	require.NoError(t, err)
	second, err := f.engine.ProposeSolution(ctx, citizenActor(), issue.ID, ProposeSolutionInput{
		Title: "Repave the block", EstimatedCost: 4_500_00,
	})
	require.NoError(t, err)

	_, err = f.engine.SelectOfficialSolution(ctx, official, issue.ID, first.ID)
	require.NoError(t, err)

	approved, err := f.engine.SelectOfficialSolution(ctx, official, issue.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, SolutionApproved, approved.Status)

	solutions, err := f.engine.ListSolutions(ctx, issue.ID)
	require.NoError(t, err)
	var approvedCount int
	for _, s := range solutions {
		if s.Status == SolutionApproved {
			approvedCount++
			assert.Equal(t, second.ID, s.ID)
		}
		if s.ID == first.ID {
			assert.Equal(t, SolutionProposed, s.Status)
		}
	}
	assert.Equal(t, 1, approvedCount)
}

func TestConcurrentSolutionSelectionLeavesOneWinner(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	official := verifiedOfficial()
	ctx := context.Background()

	const candidates = 10
	ids := make([]id.SolutionID, candidates)
	for i := range ids {
		solution, err := f.engine.ProposeSolution(ctx, citizenActor(), issue.ID, ProposeSolutionInput{Title: "Fix"})
		require.NoError(t, err)
		ids[i] = solution.ID
	}

	var wg sync.WaitGroup
	for _, solutionID := range ids {
		wg.Add(1)
		go func(sid id.SolutionID) {
			defer wg.Done()
			_, err := f.engine.SelectOfficialSolution(ctx, official, issue.ID, sid)
			assert.NoError(t, err)
		}(solutionID)
	}
	wg.Wait()

	solutions, err := f.engine.ListSolutions(ctx, issue.ID)
	require.NoError(t, err)
	var approvedCount int
	for _, s := range solutions {
		if s.Status == SolutionApproved {
			approvedCount++
		}
	}
	assert.Equal(t, 1, approvedCount)
}

func TestDeleteIssueOwnershipAndAudit(t *testing.T) {
	f := newEngineFixture(t, 5)
	author := citizenActor()
	issue := mustCreateIssue(t, f, author)
	ctx := context.Background()

	err := f.engine.DeleteIssue(ctx, citizenActor(), issue.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, f.engine.DeleteIssue(ctx, author, issue.ID))

	_, err = f.engine.GetIssue(ctx, issue.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	entries, err := f.audit.ListByTarget(ctx, "issue", issue.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionIssueDeleted, entries[0].Action)
	assert.NotEmpty(t, entries[0].Before)
}

func TestSolutionVoteToggle(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())
	solution, err := f.engine.ProposeSolution(context.Background(), citizenActor(), issue.ID, ProposeSolutionInput{Title: "Fix"})
	require.NoError(t, err)

	voter := citizenActor()
	on, err := f.engine.ToggleSolutionVote(context.Background(), voter, solution.ID)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.Equal(t, 1, on.Count)

	off, err := f.engine.ToggleSolutionVote(context.Background(), voter, solution.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Equal(t, 0, off.Count)
}

func TestCommentValidation(t *testing.T) {
	f := newEngineFixture(t, 5)
	issue := mustCreateIssue(t, f, citizenActor())

	_, err := f.engine.AddComment(context.Background(), citizenActor(), issue.ID, "   ")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	comment, err := f.engine.AddComment(context.Background(), citizenActor(), issue.ID, "  same here  ")
	require.NoError(t, err)
	assert.Equal(t, "same here", comment.Content)
}
