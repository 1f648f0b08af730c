package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
)

// AvailabilityChanged is the Kafka event type carrying an Update.
const AvailabilityChanged = "availability.changed"

const publishTimeout = 5 * time.Second

// BroadcastNotifier publishes stock updates to Kafka instead of emitting them locally, so every
// replica consuming the topic can feed its own streams.
type BroadcastNotifier struct {
	Publisher kafka.Publisher
	Topic     string
	Logger    *logger.Logger
}

func (n *BroadcastNotifier) Emit(u Update) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.Publisher.Publish(ctx, n.Topic, u.EventID, AvailabilityChanged, u); err != nil {
		n.Logger.Error("SSE", fmt.Sprintf("Failed to broadcast availability of %s: %v", u.TicketTypeID, err))
	}
}

// Relay emits an update consumed from Kafka to this replica's subscribers.
func (e *AvailabilityEmitter) Relay(_ context.Context, d kafka.Delivery) error {
	if d.Type != AvailabilityChanged {
		return nil
	}
	var u Update
	if err := json.Unmarshal(d.Data, &u); err != nil {
		return fmt.Errorf("decode availability update: %w", err)
	}
	if u.EventID == "" {
		return fmt.Errorf("availability update for %q has no event", u.TicketTypeID)
	}
	e.Emit(u)
	return nil
}
