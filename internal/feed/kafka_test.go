package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type recordingProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	fail    error
}

func (p *recordingProducer) Produce(_ context.Context, record *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, record)
	p.mu.Unlock()
	promise(record, p.fail)
}

func TestKafkaOutbox_PublishesKeyedRecords(t *testing.T) {
	producer := &recordingProducer{}
	outbox := NewKafkaOutbox(producer, "civicdesk.feed", discardLogger())

	event := Event{
		Table:   TableSolutions,
		Op:      OpUpdate,
		Key:     "sol-1",
		IssueID: "issue-1",
		Row:     json.RawMessage(`{"id":"sol-1","status":"approved"}`),
	}
	outbox.Publish(event)

	require.Len(t, producer.records, 1)
	record := producer.records[0]
	assert.Equal(t, "civicdesk.feed", record.Topic)
	assert.Equal(t, "solutions:sol-1", string(record.Key))

	var round Event
	require.NoError(t, json.Unmarshal(record.Value, &round))
	assert.Equal(t, event.Table, round.Table)
	assert.Equal(t, event.Op, round.Op)
	assert.Equal(t, event.IssueID, round.IssueID)
}

func TestKafkaOutbox_DeliveryFailureDoesNotPanic(t *testing.T) {
	producer := &recordingProducer{fail: assert.AnError}
	outbox := NewKafkaOutbox(producer, "civicdesk.feed", discardLogger())

	assert.NotPanics(t, func() {
		outbox.Publish(Event{Table: TableIssues, Op: OpDelete, Key: "gone"})
	})
	assert.Len(t, producer.records, 1)
}
