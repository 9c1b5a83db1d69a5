package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/issue"
	id "civicdesk/pkg/domain"
)

// FixtureSource is the demo/offline backend: all state lives in memory,
// mutations apply locally and immediately, and change events go straight to
// this source's own subscribers without any dispatcher or network hop. Views
// observe exactly the same shapes as against LiveSource.
type FixtureSource struct {
	mu     stdsync.Mutex
	store  *issue.InMemoryStore
	actor  identity.Actor
	subs   map[int]*fixtureSub
	nextID int
	now    func() time.Time
}

func NewFixtureSource(actor identity.Actor) *FixtureSource {
	return &FixtureSource{
		store: issue.NewInMemoryStore(),
		actor: actor,
		subs:  make(map[int]*fixtureSub),
		now:   time.Now,
	}
}

// Seed loads a demo issue directly into the fixture.
func (s *FixtureSource) Seed(ctx context.Context, row issue.Issue) error {
	return s.store.CreateIssue(ctx, row)
}

func (s *FixtureSource) FetchIssue(ctx context.Context, issueID id.IssueID) (issue.Issue, error) {
	return s.store.GetIssue(ctx, issueID)
}

func (s *FixtureSource) FetchIssues(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error) {
	return s.store.ListIssues(ctx, filter)
}

func (s *FixtureSource) FetchComments(ctx context.Context, issueID id.IssueID) ([]issue.Comment, error) {
	return s.store.ListComments(ctx, issueID)
}

func (s *FixtureSource) FetchUpdates(ctx context.Context, issueID id.IssueID) ([]issue.Update, error) {
	return s.store.ListUpdates(ctx, issueID)
}

func (s *FixtureSource) FetchSolutions(ctx context.Context, issueID id.IssueID) ([]issue.Solution, error) {
	return s.store.ListSolutions(ctx, issueID)
}

func (s *FixtureSource) ToggleVote(ctx context.Context, issueID id.IssueID) (issue.ToggleResult, error) {
	result, err := s.store.ToggleVote(ctx, issueID, s.actor.ID)
	if err != nil {
		return issue.ToggleResult{}, err
	}
	s.emitIssue(ctx, issueID)
	return result, nil
}

func (s *FixtureSource) ToggleWatch(ctx context.Context, issueID id.IssueID) (issue.ToggleResult, error) {
	result, err := s.store.ToggleWatch(ctx, issueID, s.actor.ID)
	if err != nil {
		return issue.ToggleResult{}, err
	}
	s.emitIssue(ctx, issueID)
	return result, nil
}

func (s *FixtureSource) AddComment(ctx context.Context, issueID id.IssueID, content string) (issue.Comment, error) {
	comment := issue.Comment{
		ID:        id.NewCommentID(),
		IssueID:   issueID,
		AuthorID:  s.actor.ID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddComment(ctx, comment); err != nil {
		return issue.Comment{}, err
	}
	raw, _ := json.Marshal(comment)
	s.emit(feed.Event{
		Table:   feed.TableComments,
		Op:      feed.OpInsert,
		Key:     comment.ID.String(),
		IssueID: issueID.String(),
		Row:     raw,
	})
	return comment, nil
}

func (s *FixtureSource) Subscribe(table feed.Table, filter feed.Filter) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := &fixtureSub{
		ch:     make(chan feed.Event, feed.DefaultBuffer),
		table:  table,
		filter: filter,
	}
	subID := s.nextID
	sub.remove = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, subID)
	}
	s.subs[subID] = sub
	return sub, nil
}

func (s *FixtureSource) emitIssue(ctx context.Context, issueID id.IssueID) {
	row, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return
	}
	raw, _ := json.Marshal(row)
	s.emit(feed.Event{
		Table:   feed.TableIssues,
		Op:      feed.OpUpdate,
		Key:     issueID.String(),
		IssueID: issueID.String(),
		Row:     raw,
	})
}

func (s *FixtureSource) emit(event feed.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.table != event.Table || !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Full buffer: skip the event, the next fetch catches up.
		}
	}
}

type fixtureSub struct {
	ch     chan feed.Event
	table  feed.Table
	filter feed.Filter
	once   stdsync.Once
	remove func()
}

func (s *fixtureSub) C() <-chan feed.Event { return s.ch }

func (s *fixtureSub) Table() feed.Table { return s.table }

func (s *fixtureSub) Close() {
	s.once.Do(func() {
		s.remove()
		close(s.ch)
	})
}
