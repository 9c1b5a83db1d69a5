package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/issue"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/ratelimit"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/audit"
)

type liveFixture struct {
	engine *issue.Engine
	broker *feed.Broker
	actor  identity.Actor
	source *LiveSource
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.NewLimiter(ratelimit.NewInMemoryBucketStore(), 100, time.Hour, logger)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	broker := feed.NewBroker(m)
	engine := issue.NewEngine(issue.NewInMemoryStore(), limiter, audit.NewInMemoryStore(), broker, m, logger)
	actor := identity.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
	return &liveFixture{
		engine: engine,
		broker: broker,
		actor:  actor,
		source: NewLiveSource(engine, broker, actor),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *liveFixture) createIssue(t *testing.T) issue.Issue {
	t.Helper()
	created, err := f.engine.CreateIssue(context.Background(), f.actor, issue.CreateIssueInput{
		Title:       "Flickering streetlight",
		Description: "Out since last week",
		Category:    issue.CategoryElectricity,
	})
	require.NoError(t, err)
	return created
}

func TestIssueViewReconcilesVoteEvents(t *testing.T) {
	f := newLiveFixture(t)
	created := f.createIssue(t)

	view, err := OpenIssueView(context.Background(), f.source, created.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()

	voter := identity.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
	_, err = f.engine.ToggleVote(context.Background(), voter, created.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return view.Issue().VoteCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestIssueViewAppendsComments(t *testing.T) {
	f := newLiveFixture(t)
	created := f.createIssue(t)

	view, err := OpenIssueView(context.Background(), f.source, created.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()

	comment, err := f.engine.AddComment(context.Background(), f.actor, created.ID, "same on my street")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		comments := view.Comments()
		return len(comments) == 1 && comments[0].ID == comment.ID
	}, time.Second, 5*time.Millisecond)

	// Replaying the same insert is idempotent, not a duplicate.
	f.broker.Publish(feed.Event{
		Table:   feed.TableComments,
		Op:      feed.OpInsert,
		Key:     comment.ID.String(),
		IssueID: created.ID.String(),
		Row:     mustMarshal(t, comment),
	})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, view.Comments(), 1)
}

func TestIssueViewObservesDelete(t *testing.T) {
	f := newLiveFixture(t)
	created := f.createIssue(t)

	view, err := OpenIssueView(context.Background(), f.source, created.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()

	require.NoError(t, f.engine.DeleteIssue(context.Background(), f.actor, created.ID))
	require.Eventually(t, view.Deleted, time.Second, 5*time.Millisecond)
}

func TestIssueViewCloseReleasesSubscriptions(t *testing.T) {
	f := newLiveFixture(t)
	created := f.createIssue(t)

	view, err := OpenIssueView(context.Background(), f.source, created.ID, discardLogger())
	require.NoError(t, err)
	require.Equal(t, 1, f.broker.SubscriberCount(feed.TableIssues))
	require.Equal(t, 1, f.broker.SubscriberCount(feed.TableComments))

	view.Close()
	assert.Equal(t, 0, f.broker.SubscriberCount(feed.TableIssues))
	assert.Equal(t, 0, f.broker.SubscriberCount(feed.TableComments))
	assert.Equal(t, 0, f.broker.SubscriberCount(feed.TableUpdates))
	assert.Equal(t, 0, f.broker.SubscriberCount(feed.TableSolutions))
}

func TestIssueViewIgnoresOtherIssues(t *testing.T) {
	f := newLiveFixture(t)
	created := f.createIssue(t)
	other := f.createIssue(t)

	view, err := OpenIssueView(context.Background(), f.source, created.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()

	_, err = f.engine.AddComment(context.Background(), f.actor, other.ID, "different issue")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, view.Comments())
}

func TestFixtureSourceMatchesLiveShapes(t *testing.T) {
	actor := identity.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
	source := NewFixtureSource(actor)
	seeded := issue.Issue{
		ID:           id.NewIssueID(),
		Title:        "Demo pothole",
		Description:  "Fixture data",
		Category:     issue.CategoryRoads,
		Status:       issue.StatusOpen,
		WatcherCount: 1,
		AuthorID:     actor.ID,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, source.Seed(context.Background(), seeded))

	view, err := OpenIssueView(context.Background(), source, seeded.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()

	result, err := source.ToggleVote(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, result.Active)
	assert.Equal(t, 1, result.Count)

	require.Eventually(t, func() bool {
		return view.Issue().VoteCount == 1
	}, time.Second, 5*time.Millisecond)

	_, err = source.AddComment(context.Background(), seeded.ID, "offline comment")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(view.Comments()) == 1
	}, time.Second, 5*time.Millisecond)
}

// flakySource wraps a fixture and hands out subscriptions that can be force
// dropped, counting snapshot fetches to observe recovery behavior.
type flakySource struct {
	*FixtureSource
	mu         stdsync.Mutex
	fetches    int
	failFetch  bool
	currentSub Subscription
}

func (s *flakySource) FetchIssue(ctx context.Context, issueID id.IssueID) (issue.Issue, error) {
	s.mu.Lock()
	s.fetches++
	fail := s.failFetch
	s.mu.Unlock()
	if fail {
		return issue.Issue{}, errors.New("transient fetch failure")
	}
	return s.FixtureSource.FetchIssue(ctx, issueID)
}

func (s *flakySource) Subscribe(table feed.Table, filter feed.Filter) (Subscription, error) {
	sub, err := s.FixtureSource.Subscribe(table, filter)
	if err != nil {
		return nil, err
	}
	if table == feed.TableIssues {
		s.mu.Lock()
		s.currentSub = sub
		s.mu.Unlock()
	}
	return sub, nil
}

func (s *flakySource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func TestIssueViewRecoversFromLagDrop(t *testing.T) {
	actor := identity.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
	source := &flakySource{FixtureSource: NewFixtureSource(actor)}
	seeded := issue.Issue{
		ID:          id.NewIssueID(),
		Title:       "Lagging view",
		Description: "x",
		Category:    issue.CategoryOther,
		Status:      issue.StatusOpen,
		AuthorID:    actor.ID,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, source.Seed(context.Background(), seeded))

	view, err := OpenIssueView(context.Background(), source, seeded.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()
	baseline := source.fetchCount()

	// A vote lands while the view is detached; the drop forces a re-fetch
	// that picks it up without any event delivery.
	source.mu.Lock()
	dropped := source.currentSub
	source.mu.Unlock()
	_, err = source.FixtureSource.ToggleVote(context.Background(), seeded.ID)
	require.NoError(t, err)
	dropped.Close()

	require.Eventually(t, func() bool {
		return source.fetchCount() > baseline && view.Issue().VoteCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIssueViewBacksOffOnTransientFetchFailure(t *testing.T) {
	actor := identity.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
	source := &flakySource{FixtureSource: NewFixtureSource(actor)}
	seeded := issue.Issue{
		ID:          id.NewIssueID(),
		Title:       "Recovering view",
		Description: "x",
		Category:    issue.CategoryOther,
		Status:      issue.StatusOpen,
		AuthorID:    actor.ID,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, source.Seed(context.Background(), seeded))

	view, err := OpenIssueView(context.Background(), source, seeded.ID, discardLogger())
	require.NoError(t, err)
	defer view.Close()

	source.mu.Lock()
	source.failFetch = true
	dropped := source.currentSub
	source.mu.Unlock()
	dropped.Close()

	// Recovery keeps retrying while the fetch fails.
	baseline := source.fetchCount()
	require.Eventually(t, func() bool {
		return source.fetchCount() > baseline
	}, 2*time.Second, 10*time.Millisecond)

	source.mu.Lock()
	source.failFetch = false
	source.mu.Unlock()

	_, err = source.FixtureSource.ToggleVote(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return view.Issue().VoteCount == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
