package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"event-ticketing/internal/models"
)

func CreateUser(t *testing.T, db bun.IDB, role models.Role) *models.User {
	t.Helper()

	id := uuid.NewString()
	u := &models.User{
		ID:           id,
		Username:     "user-" + id[:8],
		Email:        id[:8] + "@example.com",
		PasswordHash: "x",
		Role:         role,
		OrganizerRequest: models.OrganizerRequest{
			Status: models.RequestNone,
		},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := db.NewInsert().Model(u).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	return u
}

// TypeSpec describes a ticket type for CreateEvent.
type TypeSpec struct {
	Name      string
	Price     string
	Total     int
	Available int
}

func CreateEvent(t *testing.T, db bun.IDB, organizerID string, startsAt time.Time, types ...TypeSpec) *models.Event {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	e := &models.Event{
		ID:          uuid.NewString(),
		Title:       "Concert",
		Description: "An evening concert",
		Category:    "music",
		StartsAt:    startsAt.UTC(),
		Location:    "Dakar",
		OrganizerID: organizerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := db.NewInsert().Model(e).Exec(ctx); err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}

	for _, spec := range types {
		tt := &models.TicketType{
			ID:                uuid.NewString(),
			EventID:           e.ID,
			Name:              spec.Name,
			Price:             decimal.RequireFromString(spec.Price),
			TotalQuantity:     spec.Total,
			AvailableQuantity: spec.Available,
			CreatedAt:         now,
		}
		if _, err := db.NewInsert().Model(tt).Exec(ctx); err != nil {
			t.Fatalf("Failed to insert ticket type: %v", err)
		}
		e.TicketTypes = append(e.TicketTypes, tt)
	}
	return e
}

// TicketType reloads a ticket type so tests observe committed stock.
func TicketType(t *testing.T, db bun.IDB, id string) *models.TicketType {
	t.Helper()

	tt := new(models.TicketType)
	if err := db.NewSelect().Model(tt).Where("id = ?", id).Scan(context.Background()); err != nil {
		t.Fatalf("Failed to load ticket type %s: %v", id, err)
	}
	return tt
}

func CountTickets(t *testing.T, db bun.IDB, where string, args ...any) int {
	t.Helper()

	n, err := db.NewSelect().Model((*models.Ticket)(nil)).Where(where, args...).Count(context.Background())
	if err != nil {
		t.Fatalf("Failed to count tickets: %v", err)
	}
	return n
}

// CreateTicket inserts a ticket row without touching stock.
func CreateTicket(t *testing.T, db bun.IDB, userID string, tt *models.TicketType, qty int, status models.PaymentStatus, purchasedAt time.Time) *models.Ticket {
	t.Helper()

	ticket := &models.Ticket{
		ID:            uuid.NewString(),
		EventID:       tt.EventID,
		UserID:        userID,
		TicketTypeID:  tt.ID,
		Quantity:      qty,
		TotalPrice:    tt.Price.Mul(decimal.NewFromInt(int64(qty))),
		PaymentStatus: status,
		PurchasedAt:   purchasedAt.UTC(),
		QRPayload:     "payload-" + uuid.NewString(),
	}
	if _, err := db.NewInsert().Model(ticket).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to insert ticket: %v", err)
	}
	return ticket
}
