package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-advisory-service/internal/config"
	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces decision events to a Kafka topic.
// It implements pipeline.DecisionPublisher.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured advisory topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaAdvisoryTopic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           cfg.KafkaBatchTimeout,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, timeout: cfg.KafkaPublishTimeout, metrics: metrics, logger: logger}
}

// Publish writes one decision event keyed by session id, so every decision of
// a session lands on the same partition in order. The write gives up after the
// configured publish timeout.
func (p *Publisher) Publish(ctx context.Context, event domain.DecisionEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		p.metrics.PublishErrors.Inc()
		return err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.PublishErrors.Inc()
		return fmt.Errorf("write decision event: %w", err)
	}
	p.metrics.DecisionsPublished.Inc()
	p.logger.Debug("decision published", "session_id", event.SessionID, "outcome", event.Outcome)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a DecisionEvent into a Kafka message.
func serializeToMessage(event domain.DecisionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize decision event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.SessionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(event.Outcome)},
			{Key: "evaluated_at", Value: []byte(event.EvaluatedAt.Format(time.RFC3339))},
		},
	}, nil
}
