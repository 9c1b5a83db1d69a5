package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engagement engine.
type Metrics struct {
	VotesToggled        *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	FeedEventsPublished *prometheus.CounterVec
	FeedSubscribers     prometheus.Gauge
	FeedDropped         prometheus.Counter
	RateLimitRejections prometheus.Counter
	BulkItems           *prometheus.CounterVec
}

// New creates and registers all metrics with the given registerer. Pass
// prometheus.DefaultRegisterer in main; tests use a private registry so
// parallel suites never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VotesToggled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_votes_toggled_total",
			Help: "Vote toggles by target (issue or solution) and direction (on or off).",
		}, []string{"target", "direction"}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_status_transitions_total",
			Help: "Issue status transitions by new status.",
		}, []string{"status"}),
		FeedEventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_feed_events_published_total",
			Help: "Change feed events published by table and operation.",
		}, []string{"table", "op"}),
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "civicdesk_feed_subscribers",
			Help: "Live change feed subscriptions.",
		}),
		FeedDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_feed_subscriptions_dropped_total",
			Help: "Subscriptions closed because the subscriber lagged.",
		}),
		RateLimitRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "civicdesk_issue_create_rate_limited_total",
			Help: "Issue creations rejected by the sliding window limiter.",
		}),
		BulkItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "civicdesk_bulk_items_total",
			Help: "Admin bulk workflow item outcomes.",
		}, []string{"operation", "outcome"}),
	}
}
