package sse

import (
	"context"
	"sync"

	"event-ticketing/internal/metrics"
)

// Update reports the stock of one ticket type after a change.
type Update struct {
	EventID           string `json:"event_id"`
	TicketTypeID      string `json:"ticket_type_id"`
	AvailableQuantity int    `json:"available_quantity"`
	TotalQuantity     int    `json:"total_quantity"`
}

// AvailabilityEmitter fans stock updates out to the open streams of each event.
type AvailabilityEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan Update
}

func NewAvailabilityEmitter() *AvailabilityEmitter {
	return &AvailabilityEmitter{clients: make(map[string][]chan Update)}
}

// Subscribe registers a buffered channel that is closed once ctx is done.
func (e *AvailabilityEmitter) Subscribe(ctx context.Context, eventID string) <-chan Update {
	ch := make(chan Update, 10)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()
	metrics.SSESubscribers.Inc()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()

	return ch
}

// Emit never blocks: a client with a full buffer misses the update.
func (e *AvailabilityEmitter) Emit(u Update) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[u.EventID] {
		select {
		case ch <- u:
		default:
		}
	}
}

func (e *AvailabilityEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}

func (e *AvailabilityEmitter) remove(eventID string, ch chan Update) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			metrics.SSESubscribers.Dec()
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}
