package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Producer publishes booking events to Kafka. A nil Producer is valid and
// drops every event, so callers never need to branch on whether Kafka is
// configured.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *logrus.Logger
}

// NewProducer creates a producer for the given brokers and topic.
func NewProducer(brokers []string, topic string, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// Publish sends one event keyed by booking reference so all events for a
// booking land on the same partition.
func (p *Producer) Publish(ctx context.Context, event BookingEvent) error {
	if p == nil {
		return nil
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingReference),
		Value: data,
		Time:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     p.topic,
		"type":      event.Type,
		"reference": event.BookingReference,
	}).Debug("Published booking event")

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
