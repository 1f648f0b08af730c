// Package checkout reconciles card payments taken by the payment provider with ticket issuance.
// Stock is only taken once the provider reports the session as paid.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/database"
	eventsdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/inventory"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/metrics"
	"event-ticketing/internal/models"
)

// Started is returned by BeginCheckout; the buyer is sent to RedirectURL.
type Started struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// Completion reports the ticket of a paid session. Created is false when the session had already
// been turned into a ticket.
type Completion struct {
	Ticket  *models.Ticket `json:"ticket"`
	Created bool           `json:"created"`
}

type Service struct {
	DB        *bun.DB
	Events    *eventsdb.DB
	Gateway   Gateway
	Inventory *inventory.Service
	Publisher kafka.Publisher
	Topics    config.TopicConfig
	Stripe    config.StripeConfig
	Clock     clock.Clock
	Logger    *logger.Logger
}

func NewService(db *bun.DB, gateway Gateway, inv *inventory.Service, publisher kafka.Publisher, topics config.TopicConfig, cfg config.StripeConfig, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		DB:        db,
		Events:    &eventsdb.DB{Bun: db},
		Gateway:   gateway,
		Inventory: inv,
		Publisher: publisher,
		Topics:    topics,
		Stripe:    cfg,
		Clock:     clk,
		Logger:    log,
	}
}

// BeginCheckout opens a provider session for quantity units of a ticket type. The stock check is
// advisory: nothing is reserved until the payment completes.
func (s *Service) BeginCheckout(ctx context.Context, eventID, ticketTypeID string, quantity int, buyer *models.User) (*Started, error) {
	started, err := s.begin(ctx, eventID, ticketTypeID, quantity, buyer)
	metrics.CheckoutOperations.WithLabelValues("begin", metrics.Result(err)).Inc()
	return started, err
}

func (s *Service) begin(ctx context.Context, eventID, ticketTypeID string, quantity int, buyer *models.User) (*Started, error) {
	if buyer == nil {
		return nil, apperr.ErrUnauthorized
	}
	if !buyer.Role.Can(models.CapBuyTickets) {
		return nil, apperr.ErrForbidden
	}
	if quantity <= 0 {
		return nil, apperr.ErrInvalidQuantity
	}

	event, err := s.Events.GetEvent(ctx, s.DB, eventID)
	if errors.Is(err, apperr.ErrEventNotFound) {
		return nil, apperr.ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	var tt *models.TicketType
	for _, candidate := range event.TicketTypes {
		if candidate.ID == ticketTypeID {
			tt = candidate
			break
		}
	}
	if tt == nil {
		return nil, apperr.ErrTicketTypeNotFound
	}
	if !tt.IsAvailable() {
		return nil, apperr.ErrInsufficientStock.With(fmt.Sprintf("%s is sold out", tt.Name))
	}
	if tt.AvailableQuantity < quantity {
		return nil, apperr.ErrInsufficientStock.With(
			fmt.Sprintf("only %d tickets left for %s", tt.AvailableQuantity, tt.Name))
	}

	session, err := s.Gateway.CreateSession(ctx, CreateParams{
		ProductName: fmt.Sprintf("%s - %s", event.Title, tt.Name),
		UnitAmount:  tt.UnitAmountMinor(),
		Quantity:    int64(quantity),
		Currency:    s.Stripe.Currency,
		SuccessURL:  s.Stripe.SuccessURL,
		CancelURL:   s.Stripe.CancelURL,
		CustomerRef: buyer.ID,
		Metadata: Metadata{
			EventID:      event.ID,
			TicketTypeID: tt.ID,
			Quantity:     quantity,
			BuyerID:      buyer.ID,
		},
	})
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to create session for %d x %s: %v", quantity, tt.ID, err))
		return nil, apperr.ErrPaymentProvider.Wrap(err)
	}

	s.Logger.LogCheckout("STARTED", session.ID, fmt.Sprintf("%d x %s for user %s", quantity, tt.ID, buyer.ID))
	return &Started{SessionID: session.ID, RedirectURL: session.URL}, nil
}

// CompleteCheckout issues the paid ticket for a session exactly once. Replays return the ticket
// issued by the first call.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID string, buyer *models.User) (*Completion, error) {
	completion, err := s.complete(ctx, sessionID, buyer)
	metrics.CheckoutOperations.WithLabelValues("complete", metrics.Result(err)).Inc()
	return completion, err
}

func (s *Service) complete(ctx context.Context, sessionID string, buyer *models.User) (*Completion, error) {
	if buyer == nil {
		return nil, apperr.ErrUnauthorized
	}
	if sessionID == "" {
		return nil, apperr.ErrInvalidSession
	}

	if existing, err := s.findBySession(ctx, s.DB, sessionID); err != nil {
		return nil, err
	} else if existing != nil {
		return s.replay(existing, buyer)
	}

	session, err := s.Gateway.GetSession(ctx, sessionID)
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to fetch session %s: %v", sessionID, err))
		return nil, apperr.ErrPaymentProvider.Wrap(err)
	}
	meta, err := MetadataFromMap(session.Metadata)
	if err != nil {
		return nil, err
	}
	if meta.BuyerID != buyer.ID {
		s.Logger.LogSecurity("CHECKOUT_OWNER_MISMATCH", fmt.Sprintf("user %s tried to complete session %s", buyer.ID, sessionID))
		return nil, apperr.ErrForbidden
	}
	if session.PaymentStatus != PaymentPaid {
		return nil, apperr.ErrPaymentNotCompleted
	}

	reference := session.PaymentIntentID
	if reference == "" {
		reference = session.ID
	}
	paidAt := s.Clock.Now()

	var (
		ticket   *models.Ticket
		stock    *models.TicketType
		replayed *models.Ticket
	)
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.findBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			replayed = existing
			return nil
		}
		ticket, stock, err = s.Inventory.ReserveTx(ctx, tx, inventory.Request{
			EventID:           meta.EventID,
			TicketTypeID:      meta.TicketTypeID,
			UserID:            meta.BuyerID,
			Quantity:          meta.Quantity,
			Status:            models.PaymentPaid,
			PaymentReference:  reference,
			CheckoutSessionID: session.ID,
			PaidAt:            &paidAt,
		})
		return err
	})
	if err != nil {
		committed, findErr := s.committedTicket(ctx, sessionID, err)
		if findErr != nil {
			s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to issue ticket for paid session %s: %v", sessionID, findErr))
			return nil, findErr
		}
		replayed = committed
	}
	if replayed != nil {
		return s.replay(replayed, buyer)
	}

	metrics.Reservations.WithLabelValues("checkout", "ok").Inc()
	s.Inventory.Announce(ctx, stock)
	s.Logger.LogCheckout("COMPLETED", sessionID, fmt.Sprintf("ticket %s issued to %s", ticket.ID, buyer.ID))
	s.publish(ctx, s.Topics.CheckoutCompleted, ticket.ID, "checkout.completed", ticket)
	return &Completion{Ticket: ticket, Created: true}, nil
}

// committedTicket recovers from a failed issuing transaction when a concurrent completion of the same
// session already committed. Depending on which statement lost the race, that shows up as a unique
// violation on checkout_session_id or as insufficient stock once the winner took the last units.
// Without a committed ticket the original error is returned.
func (s *Service) committedTicket(ctx context.Context, sessionID string, txErr error) (*models.Ticket, error) {
	committed, err := s.findBySession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if committed == nil {
		return nil, txErr
	}
	if database.IsUniqueViolation(txErr) {
		s.Logger.Debug("CHECKOUT", fmt.Sprintf("Session %s lost the insert race, replaying", sessionID))
	} else {
		s.Logger.Warn("CHECKOUT", fmt.Sprintf("Session %s failed with %v after a concurrent completion, replaying", sessionID, txErr))
	}
	return committed, nil
}

func (s *Service) replay(ticket *models.Ticket, buyer *models.User) (*Completion, error) {
	if ticket.UserID != buyer.ID {
		return nil, apperr.ErrForbidden
	}
	s.Logger.LogCheckout("REPLAYED", ticket.CheckoutSessionID, fmt.Sprintf("ticket %s already issued", ticket.ID))
	return &Completion{Ticket: ticket, Created: false}, nil
}

// CancelCheckout expires an open session of the buyer and returns the event it was for. No stock is
// restored since none was taken. The event is also returned when the session is already closed.
func (s *Service) CancelCheckout(ctx context.Context, sessionID string, buyer *models.User) (string, error) {
	eventID, err := s.cancel(ctx, sessionID, buyer)
	metrics.CheckoutOperations.WithLabelValues("cancel", metrics.Result(err)).Inc()
	return eventID, err
}

func (s *Service) cancel(ctx context.Context, sessionID string, buyer *models.User) (string, error) {
	if buyer == nil {
		return "", apperr.ErrUnauthorized
	}
	if sessionID == "" {
		return "", apperr.ErrInvalidSession
	}

	session, err := s.Gateway.GetSession(ctx, sessionID)
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to fetch session %s: %v", sessionID, err))
		return "", apperr.ErrPaymentProvider.Wrap(err)
	}
	meta, err := MetadataFromMap(session.Metadata)
	if err != nil {
		return "", err
	}
	if meta.BuyerID != buyer.ID {
		return "", apperr.ErrForbidden
	}
	if session.Status != SessionOpen {
		return meta.EventID, apperr.ErrCheckoutClosed
	}

	if _, err := s.Gateway.ExpireSession(ctx, sessionID); err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to expire session %s: %v", sessionID, err))
		return meta.EventID, apperr.ErrPaymentProvider.Wrap(err)
	}

	s.Logger.LogCheckout("CANCELLED", sessionID, fmt.Sprintf("by user %s", buyer.ID))
	s.publish(ctx, s.Topics.CheckoutCancelled, sessionID, "checkout.cancelled", map[string]any{
		"session_id":     sessionID,
		"event_id":       meta.EventID,
		"ticket_type_id": meta.TicketTypeID,
		"quantity":       meta.Quantity,
		"buyer_id":       meta.BuyerID,
		"cancelled_at":   s.Clock.Now().Format(time.RFC3339),
	})
	return meta.EventID, nil
}

func (s *Service) findBySession(ctx context.Context, db bun.IDB, sessionID string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := db.NewSelect().Model(ticket).Where("checkout_session_id = ?", sessionID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket of session %s: %w", sessionID, err)
	}
	return ticket, nil
}

func (s *Service) publish(ctx context.Context, topic, key, eventType string, data any) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, topic, key, eventType, data); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, key, err))
	}
}
