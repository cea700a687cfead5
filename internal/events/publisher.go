package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/yohaboy/research-tracker/internal/domain"
	"github.com/yohaboy/research-tracker/internal/observability"
)

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherConfig holds configuration for the reconciliation event publisher.
type PublisherConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic receives the reconciliation events.
	Topic string
	// BatchSize is the maximum number of messages buffered before a write.
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits before being flushed.
	BatchTimeout time.Duration
}

// Publisher writes reconciliation events to Kafka.
type Publisher struct {
	writer  messageWriter
	topic   string
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewPublisher creates a Publisher backed by a kafka-go Writer.
func NewPublisher(cfg PublisherConfig, metrics *observability.Metrics, logger zerolog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return newPublisher(writer, cfg.Topic, metrics, logger), nil
}

func newPublisher(w messageWriter, topic string, metrics *observability.Metrics, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer:  w,
		topic:   topic,
		metrics: metrics,
		logger:  observability.WithComponent(logger, "event_publisher"),
	}
}

// PublishReconciled writes a publications.reconciled event for one author.
func (p *Publisher) PublishReconciled(ctx context.Context, event domain.ReconciledEvent) error {
	if event.EventType == "" {
		event.EventType = domain.EventTypePublicationsReconciled
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reconciled event: %w", err)
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}}
	if jobID := observability.JobIDFromContext(ctx); jobID != "" {
		headers = append(headers, kafka.Header{Key: "job_id", Value: []byte(jobID)})
	}

	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(event.AuthorID, 10)),
		Value:   value,
		Headers: headers,
		Time:    event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordEventPublished(p.topic, false)
		return fmt.Errorf("write %s event: %w", p.topic, err)
	}

	p.metrics.RecordEventPublished(p.topic, true)
	p.logger.Debug().
		Int64("author_id", event.AuthorID).
		Str("topic", p.topic).
		Msg("published reconciled event")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. It is used when Kafka is disabled.
type NopPublisher struct{}

// PublishReconciled implements the pipeline's event publisher contract.
func (NopPublisher) PublishReconciled(context.Context, domain.ReconciledEvent) error {
	return nil
}
