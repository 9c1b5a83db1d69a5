package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "civicdesk:feed:"

// envelope wraps events on the wire with the originating node so a node never
// re-delivers its own publications.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge fans local events out to Redis pub/sub and replays remote nodes'
// events into the local broker, so subscribers see mutations made anywhere.
type Bridge struct {
	client redis.UniversalClient
	broker *Broker
	origin string
	logger *slog.Logger
}

func NewBridge(client redis.UniversalClient, broker *Broker, logger *slog.Logger) *Bridge {
	return &Bridge{
		client: client,
		broker: broker,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Publish implements Publisher: sends the event to every node's bridge.
func (b *Bridge) Publish(event Event) {
	payload, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		b.logger.Error("marshal feed envelope", "error", err)
		return
	}
	ctx := context.Background()
	if err := b.client.Publish(ctx, channelPrefix+string(event.Table), payload).Err(); err != nil {
		// Remote fan-out failing must not fail the mutation; local
		// subscribers already got the event from the broker.
		b.logger.Error("publish feed event to redis", "table", string(event.Table), "error", err)
	}
}

// Run consumes remote events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.Warn("drop malformed feed envelope", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	table := Table(strings.TrimPrefix(msg.Channel, channelPrefix))
	if !table.Valid() || table != env.Event.Table {
		b.logger.Warn("drop feed envelope with mismatched table", "channel", msg.Channel)
		return
	}
	b.broker.Publish(env.Event)
}
