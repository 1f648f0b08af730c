package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEventStatusAt(t *testing.T) {
	start := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want EventStatus
	}{
		{"one second before start", start.Add(-time.Second), StatusUpcoming},
		{"at start", start, StatusOngoing},
		{"midway", start.Add(12 * time.Hour), StatusOngoing},
		{"end of window", start.Add(EventDuration), StatusOngoing},
		{"just after window", start.Add(EventDuration + time.Nanosecond), StatusPast},
		{"long after", start.AddDate(1, 0, 0), StatusPast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventStatusAt(start, tt.now))
			// pure: repeated evaluation yields the same answer
			assert.Equal(t, EventStatusAt(start, tt.now), EventStatusAt(start, tt.now))
		})
	}
}

func TestEventAggregates(t *testing.T) {
	e := &Event{TicketTypes: []*TicketType{
		{TotalQuantity: 10, AvailableQuantity: 10},
		{TotalQuantity: 5, AvailableQuantity: 2},
	}}

	assert.Equal(t, 12, e.Available())
	assert.Equal(t, 3, e.UnitsSold())
	assert.True(t, e.HasSales())
	assert.False(t, e.SoldOut())

	e.TicketTypes[0].AvailableQuantity = 0
	e.TicketTypes[1].AvailableQuantity = 0
	assert.True(t, e.SoldOut())

	assert.False(t, (&Event{}).SoldOut())
	assert.False(t, e.TicketTypes[0].IsAvailable())
}

func TestTicketTypePricing(t *testing.T) {
	tt := &TicketType{Price: decimal.RequireFromString("19.99")}

	assert.True(t, decimal.RequireFromString("59.97").Equal(tt.PriceFor(3)))
	assert.Equal(t, int64(1999), tt.UnitAmountMinor())
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentPending.CanTransitionTo(PaymentPaid))
	assert.True(t, PaymentPending.CanTransitionTo(PaymentCancelled))
	assert.False(t, PaymentPaid.CanTransitionTo(PaymentCancelled))
	assert.False(t, PaymentCancelled.CanTransitionTo(PaymentPaid))
}
