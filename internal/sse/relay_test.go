package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key, eventType string, data any) error {
	args := m.Called(ctx, topic, key, eventType, data)
	return args.Error(0)
}

func TestBroadcastNotifier_Publishes(t *testing.T) {
	pub := new(MockPublisher)
	u := Update{EventID: "evt", TicketTypeID: "vip", AvailableQuantity: 2, TotalQuantity: 5}
	pub.On("Publish", mock.Anything, "ticketing.availability", "evt", AvailabilityChanged, u).Return(assert.AnError).Once()

	n := &BroadcastNotifier{Publisher: pub, Topic: "ticketing.availability", Logger: logger.Nop()}
	n.Emit(u)

	pub.AssertExpectations(t)
}

func TestRelay(t *testing.T) {
	e := NewAvailabilityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := e.Subscribe(ctx, "evt")

	require.NoError(t, e.Relay(ctx, kafka.Delivery{Type: "ticket.reserved", Data: []byte(`{}`)}))
	require.NoError(t, e.Relay(ctx, kafka.Delivery{
		Type: AvailabilityChanged,
		Data: []byte(`{"event_id":"evt","ticket_type_id":"vip","available_quantity":1,"total_quantity":5}`),
	}))

	select {
	case u := <-ch:
		assert.Equal(t, "vip", u.TicketTypeID)
		assert.Equal(t, 1, u.AvailableQuantity)
	case <-time.After(time.Second):
		t.Fatal("expected relayed update")
	}

	assert.Error(t, e.Relay(ctx, kafka.Delivery{Type: AvailabilityChanged, Data: []byte(`nope`)}))
	assert.Error(t, e.Relay(ctx, kafka.Delivery{Type: AvailabilityChanged, Data: []byte(`{"ticket_type_id":"vip"}`)}))
}
