package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/sse"
	"event-ticketing/internal/testutil"
	"event-ticketing/internal/tickets/qr"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key, eventType string, data any) error {
	args := m.Called(ctx, topic, key, eventType, data)
	return args.Error(0)
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []sse.Update
}

func (r *recordingNotifier) Emit(u sse.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *bun.DB, *MockPublisher, *recordingNotifier) {
	db := testutil.NewDB(t)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifier := &recordingNotifier{}

	svc := NewService(db, qr.NewGenerator("test-secret", 0), notifier, pub,
		config.TopicConfig{TicketReserved: "reserved", TicketCancelled: "cancelled"},
		clock.NewFixed(now), logger.Nop())
	return svc, db, pub, notifier
}

func seed(t *testing.T, db bun.IDB, total, available int) (*models.User, *models.Event, *models.TicketType) {
	organizer := testutil.CreateUser(t, db, models.RoleOrganizer)
	buyer := testutil.CreateUser(t, db, models.RoleUser)
	event := testutil.CreateEvent(t, db, organizer.ID, now.Add(48*time.Hour),
		testutil.TypeSpec{Name: "Standard", Price: "12.50", Total: total, Available: available})
	return buyer, event, event.TicketTypes[0]
}

func TestReserve_Success(t *testing.T) {
	svc, db, pub, notifier := newService(t)
	buyer, event, tt := seed(t, db, 10, 10)

	ticket, err := svc.Reserve(context.Background(), Request{
		EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentPending, ticket.PaymentStatus)
	assert.True(t, decimal.RequireFromString("37.50").Equal(ticket.TotalPrice))
	assert.Equal(t, now, ticket.PurchasedAt)
	assert.NotEmpty(t, ticket.QRPayload)

	payload, err := qr.NewGenerator("test-secret", 0).Verify(ticket.QRPayload)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, payload.TicketID)

	stored := testutil.TicketType(t, db, tt.ID)
	assert.Equal(t, 7, stored.AvailableQuantity)
	assert.Equal(t, 1, testutil.CountTickets(t, db, "ticket_type_id = ?", tt.ID))

	require.Len(t, notifier.updates, 1)
	assert.Equal(t, 7, notifier.updates[0].AvailableQuantity)
	pub.AssertCalled(t, "Publish", mock.Anything, "reserved", ticket.ID, "ticket.reserved", mock.Anything)
}

func TestReserve_Failures(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		typeID   func(tt *models.TicketType) string
		eventID  func(e *models.Event) string
		wantErr  error
	}{
		{"zero quantity", 0, nil, nil, apperr.ErrInvalidQuantity},
		{"negative quantity", -2, nil, nil, apperr.ErrInvalidQuantity},
		{"more than available", 6, nil, nil, apperr.ErrInsufficientStock},
		{"unknown ticket type", 1, func(*models.TicketType) string { return "missing" }, nil, apperr.ErrTicketTypeNotFound},
		{"type of another event", 1, nil, func(*models.Event) string { return "other-event" }, apperr.ErrTicketTypeNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, db, pub, notifier := newService(t)
			buyer, event, tt := seed(t, db, 10, 5)

			req := Request{EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: tc.quantity}
			if tc.typeID != nil {
				req.TicketTypeID = tc.typeID(tt)
			}
			if tc.eventID != nil {
				req.EventID = tc.eventID(event)
			}

			_, err := svc.Reserve(context.Background(), req)
			assert.ErrorIs(t, err, tc.wantErr)

			stored := testutil.TicketType(t, db, tt.ID)
			assert.Equal(t, 5, stored.AvailableQuantity, "stock must be untouched")
			assert.Equal(t, 0, testutil.CountTickets(t, db, "1 = 1"))
			assert.Empty(t, notifier.updates)
			pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReserve_InsufficientStockMessage(t *testing.T) {
	svc, db, _, _ := newService(t)
	buyer, event, tt := seed(t, db, 10, 2)

	_, err := svc.Reserve(context.Background(), Request{EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 3})
	require.Error(t, err)
	assert.Equal(t, "only 2 tickets left for Standard", apperr.From(err).Message)
}

func TestReserve_ExactRemainingStock(t *testing.T) {
	svc, db, _, _ := newService(t)
	buyer, event, tt := seed(t, db, 4, 4)

	_, err := svc.Reserve(context.Background(), Request{EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), Request{EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 0, testutil.TicketType(t, db, tt.ID).AvailableQuantity)
}

func TestReserve_ConcurrentLastUnits(t *testing.T) {
	svc, db, _, _ := newService(t)
	buyer, event, tt := seed(t, db, 10, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(context.Background(), Request{
				EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 10,
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, apperr.ErrInsufficientStock):
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 0, testutil.TicketType(t, db, tt.ID).AvailableQuantity)
	assert.Equal(t, 1, testutil.CountTickets(t, db, "ticket_type_id = ?", tt.ID))
}

func TestReserve_StockStaysInRange(t *testing.T) {
	svc, db, _, _ := newService(t)
	buyer, event, tt := seed(t, db, 7, 7)

	for _, q := range []int{3, 0, 5, 2, 2, -1, 1} {
		_, _ = svc.Reserve(context.Background(), Request{EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: q})

		stored := testutil.TicketType(t, db, tt.ID)
		assert.GreaterOrEqual(t, stored.AvailableQuantity, 0)
		assert.LessOrEqual(t, stored.AvailableQuantity, stored.TotalQuantity)
	}
	assert.Equal(t, 0, testutil.TicketType(t, db, tt.ID).AvailableQuantity)
}

func TestCancelPending(t *testing.T) {
	svc, db, pub, _ := newService(t)
	buyer, event, tt := seed(t, db, 10, 10)
	ctx := context.Background()

	ticket, err := svc.Reserve(ctx, Request{EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 4})
	require.NoError(t, err)

	stranger := testutil.CreateUser(t, db, models.RoleUser)
	_, err = svc.CancelPending(ctx, ticket.ID, stranger.ID)
	assert.ErrorIs(t, err, apperr.ErrTicketNotFound)

	cancelled, err := svc.CancelPending(ctx, ticket.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, cancelled.PaymentStatus)
	assert.Equal(t, 10, testutil.TicketType(t, db, tt.ID).AvailableQuantity)
	pub.AssertCalled(t, "Publish", mock.Anything, "cancelled", ticket.ID, "ticket.cancelled", mock.Anything)

	_, err = svc.CancelPending(ctx, ticket.ID, buyer.ID)
	assert.ErrorIs(t, err, apperr.ErrTicketNotPending)
	assert.Equal(t, 10, testutil.TicketType(t, db, tt.ID).AvailableQuantity)

	paid := testutil.CreateTicket(t, db, buyer.ID, tt, 1, models.PaymentPaid, time.Now())
	_, err = svc.CancelPending(ctx, paid.ID, buyer.ID)
	assert.ErrorIs(t, err, apperr.ErrTicketNotPending)
	assert.Equal(t, 1, testutil.CountTickets(t, db, "id = ? AND payment_status = ?", paid.ID, models.PaymentPaid))
	assert.Equal(t, 10, testutil.TicketType(t, db, tt.ID).AvailableQuantity)
}

func TestRestore_NeverExceedsTotal(t *testing.T) {
	_, db, _, _ := newService(t)
	_, _, tt := seed(t, db, 5, 4)

	_, err := Restore(context.Background(), db, tt.ID, 2)
	assert.Error(t, err)
	assert.Equal(t, 4, testutil.TicketType(t, db, tt.ID).AvailableQuantity)

	stock, err := Restore(context.Background(), db, tt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, stock.AvailableQuantity)
}
