package issue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/permission"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/middleware"
	"civicdesk/internal/ratelimit"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/audit"
	"civicdesk/pkg/platform/sentinel"
)

// Engine is the mutation core for issues and their engagement state. Every
// write goes through here: the engine checks permissions, delegates the
// atomic state change to the store, then emits feed events, metrics and
// audit records for what actually changed. It never holds locks of its own;
// serialization belongs to the store.
type Engine struct {
	store   Store
	limiter *ratelimit.Limiter
	audit   audit.Recorder
	feed    feed.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock. Test-only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, limiter *ratelimit.Limiter, recorder audit.Recorder, publisher feed.Publisher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		limiter: limiter,
		audit:   recorder,
		feed:    publisher,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("civicdesk/issue"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateIssueInput carries the author-supplied fields of a new issue.
type CreateIssueInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     Category `json:"category"`
	DepartmentID string   `json:"department_id"`
	Location     string   `json:"location"`
	ImageURL     string   `json:"image_url"`
}

func (in CreateIssueInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "description is required")
	}
	if !in.Category.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown category")
	}
	return nil
}

// CreateIssue files a new issue. The author is auto-subscribed as a watcher
// and the sliding window limiter consumes one creation slot before any write.
func (e *Engine) CreateIssue(ctx context.Context, actor identity.Actor, in CreateIssueInput) (Issue, error) {
	ctx, span := e.tracer.Start(ctx, "issue.Create")
	defer span.End()

	if err := permission.CanCreateIssue(actor).Err(); err != nil {
		return Issue{}, err
	}
	if err := in.validate(); err != nil {
		return Issue{}, err
	}
	if _, err := e.limiter.AllowIssueCreate(ctx, actor.ID.String()); err != nil {
		if dErrors.HasCode(err, dErrors.CodeRateLimited) {
			e.metrics.RateLimitRejections.Inc()
		}
		return Issue{}, err
	}

	issue := Issue{
		ID:           id.NewIssueID(),
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Category:     in.Category,
		Status:       StatusOpen,
		WatcherCount: 1,
		AuthorID:     actor.ID,
		DepartmentID: in.DepartmentID,
		Location:     in.Location,
		ImageURL:     in.ImageURL,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.CreateIssue(ctx, issue); err != nil {
		return Issue{}, storeErr(err, "issue")
	}
	span.SetAttributes(attribute.String("issue.id", issue.ID.String()))

	e.publishIssue(feed.OpInsert, issue)
	return issue, nil
}

func (e *Engine) GetIssue(ctx context.Context, issueID id.IssueID) (Issue, error) {
	issue, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		return Issue{}, storeErr(err, "issue")
	}
	return issue, nil
}

func (e *Engine) ListIssues(ctx context.Context, filter ListFilter) ([]Issue, error) {
	return e.store.ListIssues(ctx, filter)
}

// DeleteIssue removes an issue and everything hanging off it. Only the author
// or an admin may delete; the audited before-snapshot is the deleted row.
func (e *Engine) DeleteIssue(ctx context.Context, actor identity.Actor, issueID id.IssueID) error {
	ctx, span := e.tracer.Start(ctx, "issue.Delete")
	defer span.End()

	current, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		return storeErr(err, "issue")
	}
	if err := permission.CanDeleteIssue(actor, current.AuthorID).Err(); err != nil {
		return err
	}

	deleted, err := e.store.DeleteIssue(ctx, issueID)
	if err != nil {
		return storeErr(err, "issue")
	}

	e.record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionIssueDeleted,
		TargetType: "issue",
		TargetID:   issueID.String(),
		Before:     mustJSON(deleted),
		Outcome:    "success",
	})
	e.feed.Publish(feed.Event{
		Table:   feed.TableIssues,
		Op:      feed.OpDelete,
		Key:     issueID.String(),
		IssueID: issueID.String(),
	})
	e.metrics.FeedEventsPublished.WithLabelValues(string(feed.TableIssues), string(feed.OpDelete)).Inc()
	return nil
}

// ToggleVote flips the actor's vote on an issue and returns the canonical
// count. Safe to call twice for the same click; the second call undoes the
// first rather than erroring.
func (e *Engine) ToggleVote(ctx context.Context, actor identity.Actor, issueID id.IssueID) (ToggleResult, error) {
	ctx, span := e.tracer.Start(ctx, "issue.ToggleVote")
	defer span.End()

	if err := permission.CanEngage(actor).Err(); err != nil {
		return ToggleResult{}, err
	}
	result, err := e.store.ToggleVote(ctx, issueID, actor.ID)
	if err != nil {
		return ToggleResult{}, storeErr(err, "issue")
	}
	e.metrics.VotesToggled.WithLabelValues("issue", direction(result.Active)).Inc()
	e.publishIssueRefresh(ctx, issueID)
	return result, nil
}

// ToggleWatch flips the actor's watch subscription on an issue.
func (e *Engine) ToggleWatch(ctx context.Context, actor identity.Actor, issueID id.IssueID) (ToggleResult, error) {
	ctx, span := e.tracer.Start(ctx, "issue.ToggleWatch")
	defer span.End()

	if err := permission.CanEngage(actor).Err(); err != nil {
		return ToggleResult{}, err
	}
	result, err := e.store.ToggleWatch(ctx, issueID, actor.ID)
	if err != nil {
		return ToggleResult{}, storeErr(err, "issue")
	}
	e.publishIssueRefresh(ctx, issueID)
	return result, nil
}

// TransitionStatus moves an issue through its lifecycle. The status write and
// its companion update row commit in one transaction; subscribers may still
// see them as two feed events.
func (e *Engine) TransitionStatus(ctx context.Context, actor identity.Actor, issueID id.IssueID, next Status, note string) (Issue, error) {
	ctx, span := e.tracer.Start(ctx, "issue.TransitionStatus",
		trace.WithAttributes(attribute.String("issue.next_status", string(next))))
	defer span.End()

	if err := permission.CanTransitionStatus(actor).Err(); err != nil {
		return Issue{}, err
	}
	if !next.Valid() {
		return Issue{}, dErrors.New(dErrors.CodeInvalidInput, "unknown status")
	}

	current, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		return Issue{}, storeErr(err, "issue")
	}
	isAdmin := actor.Role == id.RoleAdmin
	if !CanTransition(current.Status, next, isAdmin) {
		return Issue{}, dErrors.New(dErrors.CodeConflict,
			"cannot transition from "+string(current.Status)+" to "+string(next))
	}

	content := note
	if content == "" {
		content = "status changed to " + string(next)
	}
	update := Update{
		ID:        id.NewUpdateID(),
		IssueID:   issueID,
		AuthorID:  actor.ID,
		Content:   content,
		Type:      UpdateTypeStatusChange,
		CreatedAt: e.now().UTC(),
	}

	issue, err := e.store.TransitionStatus(ctx, issueID, current.Status, next, update)
	if errors.Is(err, sentinel.ErrInvalidState) {
		// Someone else moved the status between our read and the write.
		return Issue{}, dErrors.New(dErrors.CodeConflict, "issue status changed concurrently, retry")
	}
	if err != nil {
		return Issue{}, storeErr(err, "issue")
	}

	e.metrics.StatusTransitions.WithLabelValues(string(next)).Inc()
	e.record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionIssueStatusChanged,
		TargetType: "issue",
		TargetID:   issueID.String(),
		Before:     mustJSON(map[string]string{"status": string(current.Status)}),
		After:      mustJSON(map[string]string{"status": string(next)}),
		Outcome:    "success",
	})
	e.publishIssue(feed.OpUpdate, issue)
	e.publishUpdate(update)
	return issue, nil
}

// AddComment appends a comment. Any signed-in user may comment.
func (e *Engine) AddComment(ctx context.Context, actor identity.Actor, issueID id.IssueID, content string) (Comment, error) {
	ctx, span := e.tracer.Start(ctx, "issue.AddComment")
	defer span.End()

	if err := permission.CanEngage(actor).Err(); err != nil {
		return Comment{}, err
	}
	if strings.TrimSpace(content) == "" {
		return Comment{}, dErrors.New(dErrors.CodeInvalidInput, "comment content is required")
	}

	comment := Comment{
		ID:        id.NewCommentID(),
		IssueID:   issueID,
		AuthorID:  actor.ID,
		Content:   strings.TrimSpace(content),
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.AddComment(ctx, comment); err != nil {
		return Comment{}, storeErr(err, "issue")
	}

	e.feed.Publish(feed.Event{
		Table:   feed.TableComments,
		Op:      feed.OpInsert,
		Key:     comment.ID.String(),
		IssueID: issueID.String(),
		Row:     mustJSON(comment),
	})
	e.metrics.FeedEventsPublished.WithLabelValues(string(feed.TableComments), string(feed.OpInsert)).Inc()
	return comment, nil
}

func (e *Engine) ListComments(ctx context.Context, issueID id.IssueID) ([]Comment, error) {
	return e.store.ListComments(ctx, issueID)
}

// PostUpdate appends an official progress update. Verified officials and
// admins only; every post is audited.
func (e *Engine) PostUpdate(ctx context.Context, actor identity.Actor, issueID id.IssueID, content string, updateType UpdateType) (Update, error) {
	ctx, span := e.tracer.Start(ctx, "issue.PostUpdate")
	defer span.End()

	if err := permission.CanPostUpdate(actor).Err(); err != nil {
		return Update{}, err
	}
	if strings.TrimSpace(content) == "" {
		return Update{}, dErrors.New(dErrors.CodeInvalidInput, "update content is required")
	}
	if updateType == "" {
		updateType = UpdateTypeInfo
	}

	update := Update{
		ID:        id.NewUpdateID(),
		IssueID:   issueID,
		AuthorID:  actor.ID,
		Content:   strings.TrimSpace(content),
		Type:      updateType,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.AddUpdate(ctx, update); err != nil {
		return Update{}, storeErr(err, "issue")
	}

	e.record(ctx, audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionUpdatePosted,
		TargetType: "issue",
		TargetID:   issueID.String(),
		After:      mustJSON(update),
		Outcome:    "success",
	})
	e.publishUpdate(update)
	return update, nil
}

func (e *Engine) ListUpdates(ctx context.Context, issueID id.IssueID) ([]Update, error) {
	return e.store.ListUpdates(ctx, issueID)
}

// ProposeSolutionInput carries the proposer-supplied fields of a solution.
type ProposeSolutionInput struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	EstimatedCost int64  `json:"estimated_cost"`
}

// ProposeSolution files a solution against an issue. Citizens may propose
// without verification.
func (e *Engine) ProposeSolution(ctx context.Context, actor identity.Actor, issueID id.IssueID, in ProposeSolutionInput) (Solution, error) {
	ctx, span := e.tracer.Start(ctx, "issue.ProposeSolution")
	defer span.End()

	if err := permission.CanEngage(actor).Err(); err != nil {
		return Solution{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return Solution{}, dErrors.New(dErrors.CodeInvalidInput, "solution title is required")
	}
	if in.EstimatedCost < 0 {
		return Solution{}, dErrors.New(dErrors.CodeInvalidInput, "estimated cost cannot be negative")
	}

	solution := Solution{
		ID:            id.NewSolutionID(),
		IssueID:       issueID,
		ProposedBy:    actor.ID,
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		EstimatedCost: in.EstimatedCost,
		Status:        SolutionProposed,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.store.AddSolution(ctx, solution); err != nil {
		return Solution{}, storeErr(err, "issue")
	}

	e.publishSolution(feed.OpInsert, solution)
	return solution, nil
}

func (e *Engine) ListSolutions(ctx context.Context, issueID id.IssueID) ([]Solution, error) {
	return e.store.ListSolutions(ctx, issueID)
}

// ToggleSolutionVote flips the actor's vote on a solution.
func (e *Engine) ToggleSolutionVote(ctx context.Context, actor identity.Actor, solutionID id.SolutionID) (ToggleResult, error) {
	ctx, span := e.tracer.Start(ctx, "issue.ToggleSolutionVote")
	defer span.End()

	if err := permission.CanEngage(actor).Err(); err != nil {
		return ToggleResult{}, err
	}
	result, err := e.store.ToggleSolutionVote(ctx, solutionID, actor.ID)
	if err != nil {
		return ToggleResult{}, storeErr(err, "solution")
	}
	e.metrics.VotesToggled.WithLabelValues("solution", direction(result.Active)).Inc()

	if solution, getErr := e.store.GetSolution(ctx, solutionID); getErr == nil {
		e.publishSolution(feed.OpUpdate, solution)
	} else {
		e.logger.WarnContext(ctx, "solution refresh after vote failed",
			"solution_id", solutionID.String(), "error", getErr)
	}
	return result, nil
}

// SelectOfficialSolution approves a solution as the official fix. At most one
// solution per issue is approved; an earlier winner is atomically demoted to
// proposed in the same transaction and both rows go out on the feed.
func (e *Engine) SelectOfficialSolution(ctx context.Context, actor identity.Actor, issueID id.IssueID, solutionID id.SolutionID) (Solution, error) {
	ctx, span := e.tracer.Start(ctx, "issue.SelectOfficialSolution",
		trace.WithAttributes(attribute.String("solution.id", solutionID.String())))
	defer span.End()

	if err := permission.CanSelectSolution(actor).Err(); err != nil {
		return Solution{}, err
	}

	approved, superseded, err := e.store.ApproveSolution(ctx, issueID, solutionID)
	if err != nil {
		return Solution{}, storeErr(err, "solution")
	}

	event := audit.Event{
		ActorID:    actor.ID,
		Action:     audit.ActionSolutionSelected,
		TargetType: "solution",
		TargetID:   solutionID.String(),
		After:      mustJSON(approved),
		Outcome:    "success",
	}
	if superseded != nil {
		event.Before = mustJSON(superseded)
	}
	e.record(ctx, event)

	if superseded != nil {
		e.publishSolution(feed.OpUpdate, *superseded)
	}
	e.publishSolution(feed.OpUpdate, approved)
	return approved, nil
}

// publishIssueRefresh re-reads the issue and emits it as an update event so
// every subscriber sees the canonical counts, not a delta.
func (e *Engine) publishIssueRefresh(ctx context.Context, issueID id.IssueID) {
	issue, err := e.store.GetIssue(ctx, issueID)
	if err != nil {
		e.logger.WarnContext(ctx, "issue refresh after toggle failed",
			"issue_id", issueID.String(), "error", err)
		return
	}
	e.publishIssue(feed.OpUpdate, issue)
}

func (e *Engine) publishIssue(op feed.Op, issue Issue) {
	e.feed.Publish(feed.Event{
		Table:   feed.TableIssues,
		Op:      op,
		Key:     issue.ID.String(),
		IssueID: issue.ID.String(),
		Row:     mustJSON(issue),
	})
	e.metrics.FeedEventsPublished.WithLabelValues(string(feed.TableIssues), string(op)).Inc()
}

func (e *Engine) publishUpdate(update Update) {
	e.feed.Publish(feed.Event{
		Table:   feed.TableUpdates,
		Op:      feed.OpInsert,
		Key:     update.ID.String(),
		IssueID: update.IssueID.String(),
		Row:     mustJSON(update),
	})
	e.metrics.FeedEventsPublished.WithLabelValues(string(feed.TableUpdates), string(feed.OpInsert)).Inc()
}

func (e *Engine) publishSolution(op feed.Op, solution Solution) {
	e.feed.Publish(feed.Event{
		Table:   feed.TableSolutions,
		Op:      op,
		Key:     solution.ID.String(),
		IssueID: solution.IssueID.String(),
		Row:     mustJSON(solution),
	})
	e.metrics.FeedEventsPublished.WithLabelValues(string(feed.TableSolutions), string(op)).Inc()
}

func (e *Engine) record(ctx context.Context, event audit.Event) {
	event.Timestamp = e.now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	e.audit.Record(ctx, event)
}

// storeErr maps store sentinels to coded domain errors.
func storeErr(err error, noun string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, noun+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, noun+" already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, noun+" is in a conflicting state")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
	}
}

func direction(active bool) string {
	if active {
		return "on"
	}
	return "off"
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
