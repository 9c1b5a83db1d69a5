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

// IssueListView mirrors the issue listing: a snapshot plus live upserts and
// deletes from the issues stream. The view keeps every issue it hears about
// and applies the filter at read time, so an issue that changes status moves
// between filtered listings without a re-fetch.
type IssueListView struct {
	source DataSource
	filter issue.ListFilter
	logger *slog.Logger

	mu     stdsync.Mutex
	issues map[id.IssueID]issue.Issue

	cancel context.CancelFunc
	done   chan struct{}
}

func OpenIssueListView(ctx context.Context, source DataSource, filter issue.ListFilter, logger *slog.Logger) (*IssueListView, error) {
	sub, err := source.Subscribe(feed.TableIssues, feed.Filter{})
	if err != nil {
		return nil, err
	}

	v := &IssueListView{
		source: source,
		filter: filter,
		logger: logger,
		issues: make(map[id.IssueID]issue.Issue),
		done:   make(chan struct{}),
	}
	if err := v.refetch(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	go func() {
		defer close(v.done)
		defer func() { sub.Close() }()
		for {
			select {
			case <-runCtx.Done():
				return
			case event, ok := <-sub.C():
				if !ok {
					next, err := v.recover(runCtx)
					if err != nil {
						return
					}
					sub = next
					continue
				}
				v.apply(event)
			}
		}
	}()
	return v, nil
}

func (v *IssueListView) Close() {
	v.cancel()
	<-v.done
}

// Issues returns the filtered, ordered listing.
func (v *IssueListView) Issues() []issue.Issue {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]issue.Issue, 0, len(v.issues))
	for _, row := range v.issues {
		if v.filter.Status != "" && row.Status != v.filter.Status {
			continue
		}
		if v.filter.Category != "" && row.Category != v.filter.Category {
			continue
		}
		out = append(out, row)
	}
	if v.filter.SortByVotes {
		sort.Slice(out, func(i, j int) bool {
			if out[i].VoteCount != out[j].VoteCount {
				return out[i].VoteCount > out[j].VoteCount
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

func (v *IssueListView) refetch(ctx context.Context) error {
	rows, err := v.source.FetchIssues(ctx, issue.ListFilter{})
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issues = make(map[id.IssueID]issue.Issue, len(rows))
	for _, row := range rows {
		v.issues[row.ID] = row
	}
	return nil
}

func (v *IssueListView) recover(ctx context.Context) (Subscription, error) {
	delay := refetchBaseDelay
	for {
		sub, err := v.source.Subscribe(feed.TableIssues, feed.Filter{})
		if err == nil {
			if err = v.refetch(ctx); err == nil {
				return sub, nil
			}
			sub.Close()
		}
		v.logger.WarnContext(ctx, "list view recovery failed, backing off",
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

func (v *IssueListView) apply(event feed.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if event.Op == feed.OpDelete {
		if key, err := id.ParseIssueID(event.Key); err == nil {
			delete(v.issues, key)
		}
		return
	}
	var row issue.Issue
	if err := json.Unmarshal(event.Row, &row); err != nil {
		v.logger.Warn("dropping malformed feed row",
			"table", string(event.Table),
			"op", string(event.Op),
			"key", event.Key,
			"error", err,
		)
		return
	}
	v.issues[row.ID] = row
}
