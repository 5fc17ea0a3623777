package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes events to a Kafka cluster. Produces are synchronous so a
// handler that treats publishing as part of its commit sees the broker error.
type Kafka struct {
	client *kgo.Client
	log    *slog.Logger
}

// KafkaOption configures the Kafka publisher.
type KafkaOption func(*kafkaConfig)

type kafkaConfig struct {
	clientID string
	log      *slog.Logger
	extra    []kgo.Opt
}

// WithClientID sets the client id reported to the brokers.
func WithClientID(id string) KafkaOption {
	return func(c *kafkaConfig) { c.clientID = id }
}

// WithKafkaLogger sets the structured logger.
func WithKafkaLogger(log *slog.Logger) KafkaOption {
	return func(c *kafkaConfig) { c.log = log }
}

// WithKgoOpts appends raw client options, e.g. SASL or TLS.
func WithKgoOpts(opts ...kgo.Opt) KafkaOption {
	return func(c *kafkaConfig) { c.extra = append(c.extra, opts...) }
}

// NewKafka connects to the cluster at the given seed brokers.
func NewKafka(brokers []string, opts ...KafkaOption) (*Kafka, error) {
	cfg := kafkaConfig{
		clientID: "relay",
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	kopts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(cfg.clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}, cfg.extra...)

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Kafka{client: client, log: cfg.log}, nil
}

// EnsureTopics creates the given topics when absent. Existing topics are left
// untouched.
func (k *Kafka) EnsureTopics(ctx context.Context, partitions int32, replication int16, topics ...string) error {
	admin := kadm.NewClient(k.client)
	resps, err := admin.CreateTopics(ctx, partitions, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %q: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Publish encodes the event payload as JSON and produces it synchronously.
func (k *Kafka) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event %q: %w", event.Type, err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	headers := []kgo.RecordHeader{
		{Key: "event-type", Value: []byte(event.Type)},
		{Key: "occurred-at", Value: []byte(occurredAt.UTC().Format(time.RFC3339Nano))},
	}
	if event.CorrelationID != "" {
		headers = append(headers, kgo.RecordHeader{Key: "correlation-id", Value: []byte(event.CorrelationID)})
	}
	for key, value := range event.Headers {
		headers = append(headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
	}

	record := &kgo.Record{
		Topic:     event.Topic,
		Key:       []byte(event.Key),
		Value:     payload,
		Headers:   headers,
		Timestamp: occurredAt,
	}

	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		k.log.Error("event publish failed",
			"topic", event.Topic, "type", event.Type, "error", err)
		return fmt.Errorf("publish %q to %q: %w", event.Type, event.Topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
