package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	stdsync "sync"
	"time"

	"civicdesk/internal/feed"
	"civicdesk/internal/issue"
	id "civicdesk/pkg/domain"
)

const (
	refetchBaseDelay = 250 * time.Millisecond
	refetchMaxDelay  = 8 * time.Second
)

// IssueView holds one issue's live state: the issue row plus its comments,
// updates and solutions, kept current by the change feed. Counts always come
// from the server-pushed row, never from counting events.
type IssueView struct {
	source  DataSource
	issueID id.IssueID
	logger  *slog.Logger

	mu        stdsync.Mutex
	issue     issue.Issue
	comments  map[id.CommentID]issue.Comment
	updates   map[id.UpdateID]issue.Update
	solutions map[id.SolutionID]issue.Solution
	deleted   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// OpenIssueView fetches a consistent snapshot, attaches to the change feed
// and starts reconciling. Close must be called on teardown; a forgotten view
// keeps consuming dispatcher capacity.
func OpenIssueView(ctx context.Context, source DataSource, issueID id.IssueID, logger *slog.Logger) (*IssueView, error) {
	v := &IssueView{
		source:    source,
		issueID:   issueID,
		logger:    logger,
		comments:  make(map[id.CommentID]issue.Comment),
		updates:   make(map[id.UpdateID]issue.Update),
		solutions: make(map[id.SolutionID]issue.Solution),
		done:      make(chan struct{}),
	}

	// Subscribe before the snapshot: an event that races the fetch reapplies
	// a state the snapshot already contains, which reconcile tolerates.
	filter := feed.Filter{IssueID: issueID.String()}
	subs := make([]Subscription, 0, 4)
	for _, table := range []feed.Table{feed.TableIssues, feed.TableComments, feed.TableUpdates, feed.TableSolutions} {
		sub, err := source.Subscribe(table, filter)
		if err != nil {
			closeAll(subs)
			return nil, err
		}
		subs = append(subs, sub)
	}

	if err := v.refetch(ctx); err != nil {
		closeAll(subs)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel

	var wg stdsync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			v.consume(runCtx, sub)
		}(sub)
	}
	go func() {
		<-runCtx.Done()
		closeAll(subs)
		wg.Wait()
		close(v.done)
	}()
	return v, nil
}

// Close tears the view down: cancels any in-flight re-fetch, releases every
// subscription and waits for the reconcile loops to stop.
func (v *IssueView) Close() {
	v.cancel()
	<-v.done
}

// Issue returns the current row.
func (v *IssueView) Issue() issue.Issue {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.issue
}

// Deleted reports whether the issue was removed while the view was open.
func (v *IssueView) Deleted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deleted
}

// Comments returns the current comments ordered by creation time.
func (v *IssueView) Comments() []issue.Comment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]issue.Comment, 0, len(v.comments))
	for _, c := range v.comments {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Updates returns the current official updates ordered by creation time.
func (v *IssueView) Updates() []issue.Update {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]issue.Update, 0, len(v.updates))
	for _, u := range v.updates {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Solutions returns the current solutions ordered by creation time.
func (v *IssueView) Solutions() []issue.Solution {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]issue.Solution, 0, len(v.solutions))
	for _, s := range v.solutions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// consume applies feed events for one table until the subscription closes.
// A closed channel means the dispatcher dropped us for lagging: the only safe
// recovery is a fresh subscription plus a full re-fetch.
func (v *IssueView) consume(ctx context.Context, sub Subscription) {
	// sub may be replaced after a lag drop; always release the current one.
	defer func() { sub.Close() }()
	table := sub.Table()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C():
			if !ok {
				next, err := v.resubscribe(ctx, table)
				if err != nil {
					return
				}
				sub = next
				continue
			}
			v.apply(event)
		}
	}
}

// resubscribe re-attaches to a stream after a lag drop, re-fetching the
// snapshot with exponential backoff until it succeeds or the view closes.
func (v *IssueView) resubscribe(ctx context.Context, table feed.Table) (Subscription, error) {
	delay := refetchBaseDelay
	for {
		sub, err := v.source.Subscribe(table, feed.Filter{IssueID: v.issueID.String()})
		if err == nil {
			if err = v.refetch(ctx); err == nil {
				return sub, nil
			}
			sub.Close()
		}
		v.logger.WarnContext(ctx, "view recovery failed, backing off",
			"issue_id", v.issueID.String(),
			"table", string(table),
			"delay", delay.String(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > refetchMaxDelay {
			delay = refetchMaxDelay
		}
	}
}

func (v *IssueView) refetch(ctx context.Context) error {
	row, err := v.source.FetchIssue(ctx, v.issueID)
	if err != nil {
		return err
	}
	comments, err := v.source.FetchComments(ctx, v.issueID)
	if err != nil {
		return err
	}
	updates, err := v.source.FetchUpdates(ctx, v.issueID)
	if err != nil {
		return err
	}
	solutions, err := v.source.FetchSolutions(ctx, v.issueID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.issue = row
	v.comments = make(map[id.CommentID]issue.Comment, len(comments))
	for _, c := range comments {
		v.comments[c.ID] = c
	}
	v.updates = make(map[id.UpdateID]issue.Update, len(updates))
	for _, u := range updates {
		v.updates[u.ID] = u
	}
	v.solutions = make(map[id.SolutionID]issue.Solution, len(solutions))
	for _, s := range solutions {
		v.solutions[s.ID] = s
	}
	return nil
}

// apply merges one event by primary key: insert and update both replace the
// row, delete removes it. Unparseable rows are dropped with a warning rather
// than poisoning the view.
func (v *IssueView) apply(event feed.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch event.Table {
	case feed.TableIssues:
		if event.Op == feed.OpDelete {
			v.deleted = true
			return
		}
		var row issue.Issue
		if err := json.Unmarshal(event.Row, &row); err != nil {
			v.warnBadRow(event, err)
			return
		}
		v.issue = row
	case feed.TableComments:
		if event.Op == feed.OpDelete {
			if key, err := id.ParseCommentID(event.Key); err == nil {
				delete(v.comments, key)
			}
			return
		}
		var row issue.Comment
		if err := json.Unmarshal(event.Row, &row); err != nil {
			v.warnBadRow(event, err)
			return
		}
		v.comments[row.ID] = row
	case feed.TableUpdates:
		if event.Op == feed.OpDelete {
			if key, err := id.ParseUpdateID(event.Key); err == nil {
				delete(v.updates, key)
			}
			return
		}
		var row issue.Update
		if err := json.Unmarshal(event.Row, &row); err != nil {
			v.warnBadRow(event, err)
			return
		}
		v.updates[row.ID] = row
	case feed.TableSolutions:
		if event.Op == feed.OpDelete {
			if key, err := id.ParseSolutionID(event.Key); err == nil {
				delete(v.solutions, key)
			}
			return
		}
		var row issue.Solution
		if err := json.Unmarshal(event.Row, &row); err != nil {
			v.warnBadRow(event, err)
			return
		}
		v.solutions[row.ID] = row
	}
}

func (v *IssueView) warnBadRow(event feed.Event, err error) {
	v.logger.Warn("dropping malformed feed row",
		"table", string(event.Table),
		"op", string(event.Op),
		"key", event.Key,
		"error", err,
	)
}

func closeAll(subs []Subscription) {
	for _, sub := range subs {
		sub.Close()
	}
}
