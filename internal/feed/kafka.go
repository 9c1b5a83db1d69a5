package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the slice of kgo.Client the outbox needs; tests substitute a
// recorder.
type Producer interface {
	Produce(ctx context.Context, record *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaOutbox mirrors every change event onto a Kafka topic so downstream
// consumers (analytics, notification pipelines) replay the feed without
// holding a live subscription. Delivery is best-effort from the portal's
// perspective; failures are logged, never bubbled into the mutation.
type KafkaOutbox struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaOutbox(producer Producer, topic string, logger *slog.Logger) *KafkaOutbox {
	return &KafkaOutbox{producer: producer, topic: topic, logger: logger}
}

// NewKafkaClient dials the brokers for the outbox producer.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
}

// Publish implements Publisher. Records are keyed by table and row key so a
// compacted topic retains the latest state per row.
func (o *KafkaOutbox) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		o.logger.Error("marshal feed event for kafka", "error", err)
		return
	}
	record := &kgo.Record{
		Topic: o.topic,
		Key:   []byte(string(event.Table) + ":" + event.Key),
		Value: payload,
	}
	o.producer.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			o.logger.Error("kafka feed publish failed",
				"table", string(event.Table),
				"key", event.Key,
				"error", err,
			)
		}
	})
}
