//go:build integration

package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/testutil"
	"event-ticketing/internal/tickets/qr"
)

func TestPostgres_ConcurrentReservationsNeverOversell(t *testing.T) {
	db := testutil.NewPostgres(t)
	svc := NewService(db, qr.NewGenerator("it-secret", 0), nil, kafka.NopPublisher{}, config.TopicConfig{},
		clock.NewSystem(), logger.Nop())

	organizer := testutil.CreateUser(t, db, models.RoleOrganizer)
	buyer := testutil.CreateUser(t, db, models.RoleUser)
	event := testutil.CreateEvent(t, db, organizer.ID, time.Now().Add(72*time.Hour),
		testutil.TypeSpec{Name: "GA", Price: "20.00", Total: 10, Available: 10})
	tt := event.TicketTypes[0]

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), Request{
				EventID: event.ID, TicketTypeID: tt.ID, UserID: buyer.ID, Quantity: 3,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	}

	stored := testutil.TicketType(t, db, tt.ID)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, stored.AvailableQuantity)
	assert.Equal(t, ok, testutil.CountTickets(t, db, "ticket_type_id = ?", tt.ID))
}

func TestPostgres_AvailableRangeConstraint(t *testing.T) {
	db := testutil.NewPostgres(t)
	organizer := testutil.CreateUser(t, db, models.RoleOrganizer)
	event := testutil.CreateEvent(t, db, organizer.ID, time.Now().Add(time.Hour),
		testutil.TypeSpec{Name: "GA", Price: "5.00", Total: 2, Available: 2})

	_, err := db.NewUpdate().Model((*models.TicketType)(nil)).
		Set("available_quantity = 3").
		Where("id = ?", event.TicketTypes[0].ID).
		Exec(context.Background())
	assert.Error(t, err, "CHECK constraint must reject available > total")
}
