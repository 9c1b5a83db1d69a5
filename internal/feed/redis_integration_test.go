//go:build integration

package feed_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/internal/feed"
	"civicdesk/internal/platform/metrics"
	"civicdesk/pkg/testutil/containers"
)

// TestBridgeFansOutAcrossNodes models two portal nodes sharing one Redis: a
// mutation published on node A must reach a subscriber attached to node B.
func TestBridgeFansOutAcrossNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc := containers.GetManager().GetRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	brokerA := feed.NewBroker(metrics.New(prometheus.NewRegistry()))
	brokerB := feed.NewBroker(metrics.New(prometheus.NewRegistry()))
	bridgeA := feed.NewBridge(rc.Client, brokerA, logger)
	bridgeB := feed.NewBridge(rc.Client, brokerB, logger)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = bridgeA.Run(runCtx) }()
	go func() { _ = bridgeB.Run(runCtx) }()

	// PSubscribe is asynchronous; give both bridges time to attach.
	time.Sleep(500 * time.Millisecond)

	subB := brokerB.Subscribe(feed.TableIssues, feed.Filter{}, feed.DefaultBuffer)
	defer subB.Close()

	event := feed.Event{
		Table:   feed.TableIssues,
		Op:      feed.OpUpdate,
		Key:     "issue-1",
		IssueID: "issue-1",
		Row:     json.RawMessage(`{"vote_count":7}`),
	}
	bridgeA.Publish(event)

	select {
	case got := <-subB.C():
		assert.Equal(t, event.Key, got.Key)
		assert.Equal(t, feed.OpUpdate, got.Op)
		assert.JSONEq(t, `{"vote_count":7}`, string(got.Row))
	case <-ctx.Done():
		t.Fatal("event never crossed the redis bridge")
	}
}

// TestBridgeSkipsOwnPublications verifies the origin check: a node must not
// re-deliver events it published itself, or local subscribers would see every
// mutation twice.
func TestBridgeSkipsOwnPublications(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc := containers.GetManager().GetRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	broker := feed.NewBroker(metrics.New(prometheus.NewRegistry()))
	bridge := feed.NewBridge(rc.Client, broker, logger)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = bridge.Run(runCtx) }()
	time.Sleep(500 * time.Millisecond)

	sub := broker.Subscribe(feed.TableIssues, feed.Filter{}, feed.DefaultBuffer)
	defer sub.Close()

	bridge.Publish(feed.Event{Table: feed.TableIssues, Op: feed.OpInsert, Key: "self"})

	select {
	case got := <-sub.C():
		t.Fatalf("own publication came back over the bridge: %+v", got)
	case <-time.After(2 * time.Second):
	}

	require.NoError(t, ctx.Err())
}
