package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetTicket loads a ticket with its event and ticket type.
func (d *DB) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := d.Bun.NewSelect().
		Model(ticket).
		Relation("Event").
		Relation("TicketType").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return ticket, nil
}

// GetTicketsByUser returns the purchase history of a user, newest first.
func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	tickets := make([]*models.Ticket, 0)
	err := d.Bun.NewSelect().
		Model(&tickets).
		Relation("Event").
		Relation("TicketType").
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.purchased_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets of user %s: %w", userID, err)
	}
	return tickets, nil
}
