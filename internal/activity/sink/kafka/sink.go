// Package kafka streams activity events to a Kafka topic for downstream
// compliance tooling. The local store stays the record of truth.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"dsar/internal/activity"
	"dsar/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the broker is considered down. Events are
// skipped instead of blocking every emitter on produce retries.
var ErrCircuitOpen = errors.New("kafka sink circuit open")

// Sink produces one record per event, keyed by run id so a run stays
// ordered within its partition.
type Sink struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
}

// Option configures the Sink.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	partitions int32
	extra      []kgo.Opt
	breaker    *circuit.Breaker
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithPartitions sets the partition count used when the topic is created.
func WithPartitions(n int32) Option {
	return func(c *config) { c.partitions = n }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *config) { c.breaker = b }
}

// WithClientOpts passes extra options to the franz-go client.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *config) { c.extra = append(c.extra, opts...) }
}

// New connects to brokers and makes sure topic exists.
func New(ctx context.Context, brokers []string, topic string, opts ...Option) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka sink requires a topic")
	}
	cfg := config{logger: slog.Default(), partitions: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.breaker == nil {
		cfg.breaker = circuit.New("kafka-activity-sink")
	}

	clientOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RecordRetries(5),
		kgo.RequestRetries(5),
	}, cfg.extra...)
	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, kadm.NewClient(client), topic, cfg.partitions); err != nil {
		client.Close()
		return nil, err
	}
	cfg.logger.InfoContext(ctx, "activity kafka sink ready", "topic", topic, "brokers", brokers)
	return &Sink{client: client, topic: topic, logger: cfg.logger, breaker: cfg.breaker}, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, topic string, partitions int32) error {
	// -1 leaves the replication factor to the broker default.
	resp, err := adm.CreateTopics(ctx, partitions, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if r, ok := resp[topic]; ok && r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, r.Err)
	}
	return nil
}

// Publish produces the event and waits for the broker ack. While the breaker
// is open it returns ErrCircuitOpen without contacting the broker.
func (s *Sink) Publish(ctx context.Context, event activity.Event) error {
	if !s.breaker.Allow() {
		return ErrCircuitOpen
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.RunID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "kafka sink circuit opened", "topic", s.topic, "error", err)
		}
		return fmt.Errorf("produce activity event: %w", err)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "kafka sink circuit closed", "topic", s.topic)
	}
	return nil
}

// Topic is the destination topic.
func (s *Sink) Topic() string { return s.topic }

// Close flushes and closes the client.
func (s *Sink) Close() error {
	s.client.Close()
	return nil
}
