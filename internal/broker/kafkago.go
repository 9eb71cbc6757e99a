package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/settled/internal/domain"
)

// KafkaWriter is the part of kafka.Writer used for publishing.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaGoPublisher publishes through a segmentio/kafka-go writer.
type KafkaGoPublisher struct {
	writer KafkaWriter
}

// NewKafkaGoPublisher creates a synchronous writer for topic.
func NewKafkaGoPublisher(brokers []string, topic string) *KafkaGoPublisher {
	return NewKafkaGoPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	})
}

// NewKafkaGoPublisherWithWriter wraps an existing writer.
func NewKafkaGoPublisherWithWriter(w KafkaWriter) *KafkaGoPublisher {
	return &KafkaGoPublisher{writer: w}
}

// Publish writes one message keyed by key.
func (p *KafkaGoPublisher) Publish(ctx context.Context, key string, value []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("broker: write message: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaGoPublisher) Close() error {
	return p.writer.Close()
}

var _ domain.EventPublisher = (*KafkaGoPublisher)(nil)
