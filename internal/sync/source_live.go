package sync

import (
	"context"

	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/issue"
	id "civicdesk/pkg/domain"
)

// LiveSource serves views from the real engine and broker. The actor is bound
// at construction: one source per authenticated session.
type LiveSource struct {
	engine *issue.Engine
	broker *feed.Broker
	actor  identity.Actor
}

func NewLiveSource(engine *issue.Engine, broker *feed.Broker, actor identity.Actor) *LiveSource {
	return &LiveSource{engine: engine, broker: broker, actor: actor}
}

func (s *LiveSource) FetchIssue(ctx context.Context, issueID id.IssueID) (issue.Issue, error) {
	return s.engine.GetIssue(ctx, issueID)
}

func (s *LiveSource) FetchIssues(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error) {
	return s.engine.ListIssues(ctx, filter)
}

func (s *LiveSource) FetchComments(ctx context.Context, issueID id.IssueID) ([]issue.Comment, error) {
	return s.engine.ListComments(ctx, issueID)
}

func (s *LiveSource) FetchUpdates(ctx context.Context, issueID id.IssueID) ([]issue.Update, error) {
	return s.engine.ListUpdates(ctx, issueID)
}

func (s *LiveSource) FetchSolutions(ctx context.Context, issueID id.IssueID) ([]issue.Solution, error) {
	return s.engine.ListSolutions(ctx, issueID)
}

func (s *LiveSource) ToggleVote(ctx context.Context, issueID id.IssueID) (issue.ToggleResult, error) {
	return s.engine.ToggleVote(ctx, s.actor, issueID)
}

func (s *LiveSource) ToggleWatch(ctx context.Context, issueID id.IssueID) (issue.ToggleResult, error) {
	return s.engine.ToggleWatch(ctx, s.actor, issueID)
}

func (s *LiveSource) AddComment(ctx context.Context, issueID id.IssueID, content string) (issue.Comment, error) {
	return s.engine.AddComment(ctx, s.actor, issueID, content)
}

func (s *LiveSource) Subscribe(table feed.Table, filter feed.Filter) (Subscription, error) {
	return s.broker.Subscribe(table, filter, feed.DefaultBuffer), nil
}
