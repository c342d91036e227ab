// Package kafka publishes sync lifecycle events. Publishing is optional and
// best-effort: the pipeline runs unchanged when no brokers are configured,
// and a failed publish never fails the sync that produced it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
)

const eventTypeSyncCompleted = "driver_sync_completed"

// Publisher produces sync-completed events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishSyncCompleted emits one message summarizing a finished sync pass.
func (p *Publisher) PublishSyncCompleted(ctx context.Context, result domain.SyncResult) error {
	msg, err := serializeResult(result)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sync event: %w", err)
	}
	p.logger.Debug("sync event published", "fetched", result.Fetched, "upserted", result.Upserted)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeResult marshals a SyncResult into a Kafka message. Messages are
// keyed by the sync's start date so a day's passes land on one partition.
func serializeResult(result domain.SyncResult) (kafkago.Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sync result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(result.StartedAt.UTC().Format("2006-01-02")),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventTypeSyncCompleted)},
			{Key: "started_at", Value: []byte(result.StartedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
