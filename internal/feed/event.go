// Package feed implements the change feed dispatcher: every accepted mutation
// produces a row-level change event delivered to all live subscriptions whose
// table and filter match. Delivery is at-least-once; subscribers that cannot
// keep up are disconnected and must re-fetch.
package feed

import "encoding/json"

// Table names a change feed stream.
type Table string

const (
	TableIssues        Table = "issues"
	TableComments      Table = "comments"
	TableUpdates       Table = "updates"
	TableSolutions     Table = "solutions"
	TableSolutionVotes Table = "solution_votes"
	TableProfiles      Table = "profiles"
)

// Valid reports whether t names a known stream.
func (t Table) Valid() bool {
	switch t {
	case TableIssues, TableComments, TableUpdates, TableSolutions, TableSolutionVotes, TableProfiles:
		return true
	}
	return false
}

// Op is the row operation carried by an event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one row-level change. Row holds the full row after the change
// (empty for deletes); counts inside Row are canonical server values, never
// client-derived deltas.
type Event struct {
	Table   Table           `json:"table"`
	Op      Op              `json:"op"`
	Key     string          `json:"key"`
	IssueID string          `json:"issue_id,omitempty"`
	Row     json.RawMessage `json:"row,omitempty"`
}

// Filter narrows a subscription. The zero Filter matches every event on the
// subscribed table.
type Filter struct {
	IssueID string
}

// Matches reports whether the event passes the filter.
func (f Filter) Matches(event Event) bool {
	return f.IssueID == "" || f.IssueID == event.IssueID
}

// Publisher is the write-side seam the engine depends on. Publish must not
// block on slow consumers.
type Publisher interface {
	Publish(event Event)
}

// Fanout publishes to several publishers in order (local broker, Redis
// bridge, Kafka outbox).
type Fanout []Publisher

func (f Fanout) Publish(event Event) {
	for _, p := range f {
		p.Publish(event)
	}
}
