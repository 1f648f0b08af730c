// Package inventory owns ticket stock: the conditional decrement that creates a ticket and the
// matching restore when a pending ticket is cancelled.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/metrics"
	"event-ticketing/internal/models"
	"event-ticketing/internal/sse"
)

// Signer produces the QR payload stored on a new ticket.
type Signer interface {
	Sign(ticket *models.Ticket) (string, error)
}

// Notifier receives stock changes after commit.
type Notifier interface {
	Emit(update sse.Update)
}

// Request describes one reservation. Status defaults to pending.
type Request struct {
	EventID           string
	TicketTypeID      string
	UserID            string
	Quantity          int
	Status            models.PaymentStatus
	PaymentReference  string
	CheckoutSessionID string
	PaidAt            *time.Time
}

type Service struct {
	DB        *bun.DB
	Signer    Signer
	Notifier  Notifier
	Publisher kafka.Publisher
	Topics    config.TopicConfig
	Clock     clock.Clock
	Logger    *logger.Logger
}

func NewService(db *bun.DB, signer Signer, notifier Notifier, publisher kafka.Publisher, topics config.TopicConfig, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		DB:        db,
		Signer:    signer,
		Notifier:  notifier,
		Publisher: publisher,
		Topics:    topics,
		Clock:     clk,
		Logger:    log,
	}
}

// Reserve takes req.Quantity units from stock and records a ticket, all in one transaction.
func (s *Service) Reserve(ctx context.Context, req Request) (*models.Ticket, error) {
	var (
		ticket *models.Ticket
		stock  *models.TicketType
	)
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		ticket, stock, err = s.ReserveTx(ctx, tx, req)
		return err
	})
	metrics.Reservations.WithLabelValues("direct", metrics.Result(err)).Inc()
	if err != nil {
		s.Logger.Warn("INVENTORY", fmt.Sprintf("Reservation of %d x %s failed: %v", req.Quantity, req.TicketTypeID, err))
		return nil, err
	}

	s.Announce(ctx, stock)
	s.publish(ctx, s.Topics.TicketReserved, ticket.ID, "ticket.reserved", ticket)
	return ticket, nil
}

// ReserveTx runs the reservation inside a caller-owned transaction. Callers announce the returned
// stock after their commit.
func (s *Service) ReserveTx(ctx context.Context, tx bun.IDB, req Request) (*models.Ticket, *models.TicketType, error) {
	if req.Quantity <= 0 {
		return nil, nil, apperr.ErrInvalidQuantity
	}

	stock, err := Decrement(ctx, tx, req.EventID, req.TicketTypeID, req.Quantity)
	if err != nil {
		return nil, nil, err
	}

	status := req.Status
	if status == "" {
		status = models.PaymentPending
	}

	ticket := &models.Ticket{
		ID:                uuid.NewString(),
		EventID:           req.EventID,
		UserID:            req.UserID,
		TicketTypeID:      req.TicketTypeID,
		Quantity:          req.Quantity,
		TotalPrice:        stock.PriceFor(req.Quantity),
		PaymentStatus:     status,
		PaymentReference:  req.PaymentReference,
		CheckoutSessionID: req.CheckoutSessionID,
		PurchasedAt:       s.Clock.Now(),
		PaidAt:            req.PaidAt,
	}
	if ticket.QRPayload, err = s.Signer.Sign(ticket); err != nil {
		return nil, nil, fmt.Errorf("sign ticket payload: %w", err)
	}

	if _, err := tx.NewInsert().Model(ticket).Exec(ctx); err != nil {
		return nil, nil, fmt.Errorf("insert ticket: %w", err)
	}

	s.Logger.LogInventory("RESERVED", stock.ID, fmt.Sprintf("%d units for user %s, %d left", req.Quantity, req.UserID, stock.AvailableQuantity))
	metrics.TicketsReserved.Add(float64(req.Quantity))
	return ticket, stock, nil
}

// CancelPending moves the caller's pending ticket to cancelled and puts its units back in stock.
func (s *Service) CancelPending(ctx context.Context, ticketID, userID string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	var stock *models.TicketType

	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(ticket).Where("id = ?", ticketID).Where("user_id = ?", userID).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		if !ticket.PaymentStatus.CanTransitionTo(models.PaymentCancelled) {
			return apperr.ErrTicketNotPending
		}

		// Matches nothing if the status changed since the read.
		res, err := tx.NewUpdate().Model((*models.Ticket)(nil)).
			Set("payment_status = ?", models.PaymentCancelled).
			Where("id = ?", ticketID).
			Where("payment_status = ?", ticket.PaymentStatus).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cancel ticket: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.ErrTicketNotPending
		}
		ticket.PaymentStatus = models.PaymentCancelled

		stock, err = Restore(ctx, tx, ticket.TicketTypeID, ticket.Quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogInventory("RESTORED", stock.ID, fmt.Sprintf("%d units from cancelled ticket %s", ticket.Quantity, ticket.ID))
	s.Announce(ctx, stock)
	s.publish(ctx, s.Topics.TicketCancelled, ticket.ID, "ticket.cancelled", ticket)
	return ticket, nil
}

// Announce pushes the committed stock of a ticket type to live subscribers.
func (s *Service) Announce(_ context.Context, stock *models.TicketType) {
	if s.Notifier == nil || stock == nil {
		return
	}
	s.Notifier.Emit(sse.Update{
		EventID:           stock.EventID,
		TicketTypeID:      stock.ID,
		AvailableQuantity: stock.AvailableQuantity,
		TotalQuantity:     stock.TotalQuantity,
	})
}

func (s *Service) publish(ctx context.Context, topic, key, eventType string, data any) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, topic, key, eventType, data); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, key, err))
	}
}

// Decrement subtracts qty from the type's stock with a single conditional UPDATE. No rows affected
// means the type is missing, belongs to another event, or has fewer than qty units left.
func Decrement(ctx context.Context, db bun.IDB, eventID, ticketTypeID string, qty int) (*models.TicketType, error) {
	if qty <= 0 {
		return nil, apperr.ErrInvalidQuantity
	}

	res, err := db.NewUpdate().Model((*models.TicketType)(nil)).
		Set("available_quantity = available_quantity - ?", qty).
		Where("id = ?", ticketTypeID).
		Where("event_id = ?", eventID).
		Where("available_quantity >= ?", qty).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	stock, lookupErr := load(ctx, db, eventID, ticketTypeID)
	if n, _ := res.RowsAffected(); n == 0 {
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, apperr.ErrInsufficientStock.With(
			fmt.Sprintf("only %d tickets left for %s", stock.AvailableQuantity, stock.Name))
	}
	return stock, lookupErr
}

// Restore adds qty back, refusing to push available_quantity above total_quantity.
func Restore(ctx context.Context, db bun.IDB, ticketTypeID string, qty int) (*models.TicketType, error) {
	if qty <= 0 {
		return nil, apperr.ErrInvalidQuantity
	}

	res, err := db.NewUpdate().Model((*models.TicketType)(nil)).
		Set("available_quantity = available_quantity + ?", qty).
		Where("id = ?", ticketTypeID).
		Where("available_quantity + ? <= total_quantity", qty).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("restore %d units to ticket type %s would exceed its total", qty, ticketTypeID)
	}

	stock := new(models.TicketType)
	if err := db.NewSelect().Model(stock).Where("id = ?", ticketTypeID).Scan(ctx); err != nil {
		return nil, err
	}
	return stock, nil
}

func load(ctx context.Context, db bun.IDB, eventID, ticketTypeID string) (*models.TicketType, error) {
	stock := new(models.TicketType)
	err := db.NewSelect().Model(stock).
		Where("id = ?", ticketTypeID).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket type: %w", err)
	}
	return stock, nil
}
