package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"event-ticketing/internal/logger"
)

// Publisher emits domain events. Services publish after their transaction commits and treat failures
// as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, eventType string, data any) error
}

// Envelope is the JSON body of every message.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Producer struct {
	Writer *kafka.Writer
	log    *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, log: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key, eventType string, data any) error {
	msgBytes, err := json.Marshal(Envelope{Type: eventType, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, topic, err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("%s key=%s", eventType, key))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NopPublisher stands in when Kafka is disabled.
type NopPublisher struct {
	Log *logger.Logger
}

func (n NopPublisher) Publish(_ context.Context, topic, key, eventType string, _ any) error {
	if n.Log != nil {
		n.Log.Debug("KAFKA", fmt.Sprintf("Kafka disabled, dropping %s for %s (key=%s)", eventType, topic, key))
	}
	return nil
}
