// Package broker delivers outbox events to Kafka.
package broker

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/alanyoungcy/settled/internal/domain"
)

// SaramaPublisher publishes through a synchronous sarama producer that
// waits for every in-sync replica.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaPublisher connects a sync producer to brokers.
func NewSaramaPublisher(brokers []string, topic, clientID string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("broker: sarama producer: %w", err)
	}
	return NewSaramaPublisherWithProducer(producer, topic), nil
}

// NewSaramaPublisherWithProducer wraps an existing producer.
func NewSaramaPublisherWithProducer(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

// Publish sends one message keyed by key.
func (p *SaramaPublisher) Publish(_ context.Context, key string, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("broker: send to %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the producer.
func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}

var _ domain.EventPublisher = (*SaramaPublisher)(nil)
