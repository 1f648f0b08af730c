package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	ticketsdb "event-ticketing/internal/tickets/db"
	"event-ticketing/internal/tickets/qr"
)

// Verification is the answer given to an organizer scanning a ticket at the door.
type Verification struct {
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Ticket *models.Ticket `json:"ticket"`
}

type TicketService struct {
	DB     *ticketsdb.DB
	QR     *qr.Generator
	Logger *logger.Logger
}

func NewTicketService(db *bun.DB, generator *qr.Generator, log *logger.Logger) *TicketService {
	return &TicketService{DB: &ticketsdb.DB{Bun: db}, QR: generator, Logger: log}
}

func (s *TicketService) History(ctx context.Context, userID string) ([]*models.Ticket, error) {
	return s.DB.GetTicketsByUser(ctx, userID)
}

// GetTicket returns the ticket when actor owns it. Tickets of other users are reported as missing.
func (s *TicketService) GetTicket(ctx context.Context, actor *models.User, id string) (*models.Ticket, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthorized
	}
	ticket, err := s.DB.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != actor.ID {
		return nil, apperr.ErrTicketNotFound
	}
	return ticket, nil
}

// QRCode renders the signed payload of the actor's ticket as a PNG image.
func (s *TicketService) QRCode(ctx context.Context, actor *models.User, id string) ([]byte, error) {
	ticket, err := s.GetTicket(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	png, err := s.QR.PNG(ticket.QRPayload)
	if err != nil {
		return nil, fmt.Errorf("render qr code for ticket %s: %w", id, err)
	}
	return png, nil
}

// Verify checks a scanned payload on behalf of the organizer of the ticket's event. Forged or stale
// payloads are rejected; a genuine ticket is reported invalid once cancelled.
func (s *TicketService) Verify(ctx context.Context, actor *models.User, token string) (*Verification, error) {
	if actor == nil || !actor.Role.Can(models.CapManageEvents) {
		return nil, apperr.ErrForbidden
	}

	token = strings.TrimSpace(token)
	payload, err := s.QR.Verify(token)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", fmt.Sprintf("organizer %s scanned an invalid payload", actor.ID))
		return nil, apperr.ErrInvalidQRCode
	}

	ticket, err := s.DB.GetTicket(ctx, payload.TicketID)
	if errors.Is(err, apperr.ErrTicketNotFound) {
		return nil, apperr.ErrInvalidQRCode
	}
	if err != nil {
		return nil, err
	}
	if ticket.Event == nil || ticket.Event.OrganizerID != actor.ID {
		return nil, apperr.ErrForbidden.With("this ticket belongs to an event you do not organize")
	}
	if ticket.QRPayload != token || ticket.EventID != payload.EventID || ticket.UserID != payload.UserID {
		return nil, apperr.ErrInvalidQRCode
	}

	result := &Verification{Valid: true, Ticket: ticket}
	if ticket.PaymentStatus == models.PaymentCancelled {
		result.Valid = false
		result.Reason = "the ticket has been cancelled"
	}
	s.Logger.Info("TICKETS", fmt.Sprintf("Ticket %s verified by %s (valid: %t)", ticket.ID, actor.ID, result.Valid))
	return result, nil
}
