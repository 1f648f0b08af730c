package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"event-ticketing/internal/logger"
)

// Delivery is a consumed message with its envelope decoded and the payload left raw.
type Delivery struct {
	Topic      string
	Key        string
	Type       string
	OccurredAt time.Time
	Data       json.RawMessage
}

type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and group, starting at the newest offset
// when the group has no committed position.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	return &Consumer{reader: reader, log: log}
}

// Start reads until ctx is cancelled. Undecodable messages and handler errors are logged and skipped.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, d Delivery) error) error {
	topic := c.reader.Config().Topic
	c.log.LogKafka("CONSUMER_STARTED", topic, fmt.Sprintf("group=%s", c.reader.Config().GroupID))

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", topic, err))
			continue
		}

		d, err := decode(msg)
		if err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping message at %s/%d: %v", topic, msg.Offset, err))
			continue
		}
		if err := handler(ctx, d); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Handler failed for %s key=%s: %v", d.Type, d.Key, err))
		}
	}
}

func decode(msg kafka.Message) (Delivery, error) {
	var env struct {
		Type       string          `json:"type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return Delivery{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Delivery{}, errors.New("envelope has no type")
	}
	return Delivery{
		Topic:      msg.Topic,
		Key:        string(msg.Key),
		Type:       env.Type,
		OccurredAt: env.OccurredAt,
		Data:       env.Data,
	}, nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
