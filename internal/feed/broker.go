package feed

import (
	"sync"

	"civicdesk/internal/platform/metrics"
)

// Broker is the in-process dispatcher. Events publish under the broker lock,
// so each subscription observes events in publish order for its table (the
// FIFO-per-table guarantee). Cross-table ordering is not promised.
type Broker struct {
	mu      sync.Mutex
	subs    map[Table]map[uint64]*Subscription
	nextID  uint64
	metrics *metrics.Metrics
}

// NewBroker builds a dispatcher. metrics may be nil in tests.
func NewBroker(m *metrics.Metrics) *Broker {
	return &Broker{
		subs:    make(map[Table]map[uint64]*Subscription),
		metrics: m,
	}
}

// DefaultBuffer is the per-subscription queue depth before a subscriber is
// considered lagged and dropped.
const DefaultBuffer = 64

// Subscribe attaches a new subscription to table with the given filter.
// buf <= 0 selects DefaultBuffer.
func (b *Broker) Subscribe(table Table, filter Filter, buf int) *Subscription {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		table:  table,
		filter: filter,
		ch:     make(chan Event, buf),
		broker: b,
	}
	if b.subs[table] == nil {
		b.subs[table] = make(map[uint64]*Subscription)
	}
	b.subs[table][sub.id] = sub
	if b.metrics != nil {
		b.metrics.FeedSubscribers.Inc()
	}
	return sub
}

// Publish delivers the event to every matching live subscription. A
// subscription whose buffer is full is lagged: it gets closed and removed so
// its consumer re-fetches instead of acting on a gapped stream.
func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.FeedEventsPublished.WithLabelValues(string(event.Table), string(event.Op)).Inc()
	}

	for _, sub := range b.subs[event.Table] {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropLocked(sub)
			if b.metrics != nil {
				b.metrics.FeedDropped.Inc()
			}
		}
	}
}

// SubscriberCount reports live subscriptions for a table.
func (b *Broker) SubscriberCount(table Table) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[table])
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(sub)
}

// dropLocked must be called holding b.mu.
func (b *Broker) dropLocked(sub *Subscription) {
	table, ok := b.subs[sub.table]
	if !ok {
		return
	}
	if _, live := table[sub.id]; !live {
		return
	}
	delete(table, sub.id)
	close(sub.ch)
	if b.metrics != nil {
		b.metrics.FeedSubscribers.Dec()
	}
}

// Subscription is one live attachment to the feed. The channel closes when the
// subscription is closed by either side; a closed channel means the consumer
// must re-fetch before resubscribing, because events may have been missed.
type Subscription struct {
	id     uint64
	table  Table
	filter Filter
	ch     chan Event
	broker *Broker
	once   sync.Once
}

// C returns the event channel. It closes on Close() or when the broker drops
// a lagged subscriber.
func (s *Subscription) C() <-chan Event { return s.ch }

// Table returns the subscribed table.
func (s *Subscription) Table() Table { return s.table }

// Close detaches the subscription. Idempotent and safe to call concurrently
// with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s)
	})
}
