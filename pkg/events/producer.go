// Package events publishes ingestion lifecycle events to Kafka. Consumers
// downstream react to catalog changes without polling the products table.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Event types.
const (
	EventProductsUpserted = "products.upserted"
	EventProductsDeleted  = "products.deleted"
	EventRunCompleted     = "run.completed"
)

// Emitter publishes ingestion events. A nil *Producer satisfies it as a
// no-op, so event emission can be switched off by configuration.
type Emitter interface {
	PublishSiteEvent(ctx context.Context, event *SiteEvent) error
	PublishRunCompleted(ctx context.Context, report *models.RunReport) error
}

// SiteEvent describes a batch of products changing for one site.
type SiteEvent struct {
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Brand     string    `json:"brand"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// RunEvent wraps the run report for the run.completed event.
type RunEvent struct {
	EventType string            `json:"event_type"`
	RunID     string            `json:"run_id"`
	Report    *models.RunReport `json:"report"`
	Timestamp time.Time         `json:"timestamp"`
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

// PublishSiteEvent publishes a per-site product change event.
func (p *Producer) PublishSiteEvent(ctx context.Context, event *SiteEvent) error {
	if p == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Producer.PublishSiteEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Source),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish site event")
		return err
	}

	metrics.KafkaMessagesPublished.WithLabelValues(event.EventType).Inc()
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"source":     event.Source,
		"count":      event.Count,
	}).Debug("Published site event")

	return nil
}

// PublishRunCompleted publishes the run summary event.
func (p *Producer) PublishRunCompleted(ctx context.Context, report *models.RunReport) error {
	if p == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Producer.PublishRunCompleted")
	defer span.End()

	event := &RunEvent{
		EventType: EventRunCompleted,
		RunID:     report.RunID,
		Report:    report,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(report.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventRunCompleted)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish run completed event")
		return err
	}

	metrics.KafkaMessagesPublished.WithLabelValues(EventRunCompleted).Inc()
	p.logger.WithContext(ctx).WithField("run_id", report.RunID).Debug("Published run completed event")

	return nil
}
