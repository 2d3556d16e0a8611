// Package notify fans out durable events to an external audit consumer over
// Kafka/Redpanda (spec.md §4.2a, additive to the core's correctness
// contract). Publish failures are logged and counted, never surfaced to the
// writer: buffer durability never depends on the notifier succeeding.
package notify

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"accessfabric/internal/domain"
	"accessfabric/internal/metrics"
)

// Publisher is the narrow interface the event buffer depends on, so that a
// no-op stub can stand in when no broker is configured.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event)
	Close()
}

// wireEvent is the JSON record shape published downstream.
type wireEvent struct {
	EventID       string `json:"event_id"`
	Kind          string `json:"kind"`
	Action        string `json:"action"`
	OccurredUnix  int64  `json:"occurred_unix_nano"`
	HashCode      int32  `json:"hash_code"`
	Payload       [3]string `json:"payload"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// KafkaPublisher publishes one JSON record per event to a configured topic,
// keyed by the event's hash code, via github.com/twmb/franz-go/pkg/kgo.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewKafkaPublisher constructs a Publisher backed by a franz-go client
// dialed against the given seed brokers.
func NewKafkaPublisher(seedBrokers []string, topic string, log *slog.Logger, m *metrics.Metrics) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seedBrokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{client: client, topic: topic, log: log, metrics: m}, nil
}

// Publish fire-and-forgets event to the configured topic. It never blocks
// the caller on broker acknowledgement failures beyond logging them.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.Event) {
	body, err := json.Marshal(wireEvent{
		EventID:       event.EventID.String(),
		Kind:          string(event.Kind),
		Action:        string(event.Action),
		OccurredUnix:  event.Occurred.UnixNano(),
		HashCode:      event.HashCode,
		Payload:       event.Payload,
		CorrelationID: event.CorrelationID,
	})
	if err != nil {
		p.log.Error("notify: marshal event", "event_id", event.EventID, "error", err)
		return
	}

	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(event.HashCode))

	record := &kgo.Record{Topic: p.topic, Key: key, Value: body}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.log.Warn("notify: publish failed", "event_id", event.EventID, "error", err)
			if p.metrics != nil {
				p.metrics.EventsFlushed.WithLabelValues("notify_failure").Inc()
			}
		}
	})
}

// Close releases the underlying franz-go client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// Noop is a Publisher that discards every event, used when no broker is
// configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.Event) {}
func (Noop) Close()                                {}
