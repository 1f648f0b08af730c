package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// Filter narrows ListEvents. Zero values mean "no filter".
type Filter struct {
	Search      string
	Category    string
	Location    string
	Status      models.EventStatus
	PriceSort   string
	OrganizerID string
	Now         time.Time
}

// unsold matches ticket types that may still be edited or removed: nothing taken from stock and no
// ticket row referencing them.
const unsold = "available_quantity = total_quantity AND id NOT IN (SELECT ticket_type_id FROM tickets)"

func withTicketTypes(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("created_at ASC", "name ASC")
}

func (d *DB) GetEvent(ctx context.Context, db bun.IDB, id string) (*models.Event, error) {
	event := new(models.Event)
	err := db.NewSelect().
		Model(event).
		Relation("TicketTypes", withTicketTypes).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (d *DB) ListEvents(ctx context.Context, f Filter) ([]*models.Event, error) {
	var events []*models.Event
	q := d.Bun.NewSelect().
		Model(&events).
		Relation("TicketTypes", withTicketTypes)

	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(?TableAlias.title) LIKE ?", pattern).
				WhereOr("LOWER(?TableAlias.description) LIKE ?", pattern)
		})
	}
	if f.Category != "" {
		q = q.Where("?TableAlias.category = ?", f.Category)
	}
	if f.Location != "" {
		q = q.Where("?TableAlias.location = ?", f.Location)
	}
	if f.OrganizerID != "" {
		q = q.Where("?TableAlias.organizer_id = ?", f.OrganizerID)
	}

	// Same boundaries as models.EventStatusAt.
	windowStart := f.Now.Add(-models.EventDuration)
	switch f.Status {
	case models.StatusUpcoming:
		q = q.Where("?TableAlias.starts_at > ?", f.Now)
	case models.StatusOngoing:
		q = q.Where("?TableAlias.starts_at <= ?", f.Now).Where("?TableAlias.starts_at >= ?", windowStart)
	case models.StatusPast:
		q = q.Where("?TableAlias.starts_at < ?", windowStart)
	}

	minPrice := "(SELECT MIN(tt.price) FROM ticket_types AS tt WHERE tt.event_id = ?TableAlias.id)"
	switch f.PriceSort {
	case "asc":
		q = q.OrderExpr(minPrice + " ASC").Order("starts_at DESC")
	case "desc":
		q = q.OrderExpr(minPrice + " DESC").Order("starts_at DESC")
	default:
		q = q.Order("starts_at DESC")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Distinct returns the sorted distinct values of an events column used as a filter.
func (d *DB) Distinct(ctx context.Context, column string) ([]string, error) {
	if column != "category" && column != "location" {
		return nil, fmt.Errorf("column %q cannot be listed", column)
	}

	var values []string
	err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		ColumnExpr("DISTINCT ?", bun.Ident(column)).
		OrderExpr("? ASC", bun.Ident(column)).
		Scan(ctx, &values)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	return values, nil
}

func (d *DB) InsertEvent(ctx context.Context, db bun.IDB, event *models.Event) error {
	if _, err := db.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (d *DB) UpdateEvent(ctx context.Context, db bun.IDB, event *models.Event) error {
	_, err := db.NewUpdate().
		Model(event).
		Column("title", "description", "category", "starts_at", "location", "image_url", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (d *DB) DeleteEvent(ctx context.Context, db bun.IDB, id string) error {
	if _, err := db.NewDelete().Model((*models.TicketType)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete ticket types: %w", err)
	}
	if _, err := db.NewDelete().Model((*models.Event)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (d *DB) InsertTicketTypes(ctx context.Context, db bun.IDB, types []*models.TicketType) error {
	if len(types) == 0 {
		return nil
	}
	if _, err := db.NewInsert().Model(&types).Exec(ctx); err != nil {
		return fmt.Errorf("insert ticket types: %w", err)
	}
	return nil
}

// DeleteUnsoldTicketTypes removes every unsold type of the event and returns the names of those
// left behind because they have sales.
func (d *DB) DeleteUnsoldTicketTypes(ctx context.Context, db bun.IDB, eventID string) ([]string, error) {
	_, err := db.NewDelete().
		Model((*models.TicketType)(nil)).
		Where("event_id = ?", eventID).
		Where(unsold).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("delete unsold ticket types: %w", err)
	}

	var remaining []string
	err = db.NewSelect().
		Model((*models.TicketType)(nil)).
		Column("name").
		Where("event_id = ?", eventID).
		Order("name ASC").
		Scan(ctx, &remaining)
	if err != nil {
		return nil, fmt.Errorf("list remaining ticket types: %w", err)
	}
	return remaining, nil
}

// UpdateUnsoldTicketType rewrites name, price and quantity of a type that has not sold anything.
// It reports false when no unsold row matched.
func (d *DB) UpdateUnsoldTicketType(ctx context.Context, db bun.IDB, tt *models.TicketType) (bool, error) {
	res, err := db.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("name = ?", tt.Name).
		Set("price = ?", tt.Price).
		Set("total_quantity = ?", tt.TotalQuantity).
		Set("available_quantity = ?", tt.TotalQuantity).
		Where("id = ?", tt.ID).
		Where("event_id = ?", tt.EventID).
		Where(unsold).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update ticket type: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (d *DB) DeleteUnsoldTicketType(ctx context.Context, db bun.IDB, eventID, typeID string) (bool, error) {
	res, err := db.NewDelete().
		Model((*models.TicketType)(nil)).
		Where("id = ?", typeID).
		Where("event_id = ?", eventID).
		Where(unsold).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete ticket type: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (d *DB) GetTicketType(ctx context.Context, db bun.IDB, eventID, typeID string) (*models.TicketType, error) {
	tt := new(models.TicketType)
	err := db.NewSelect().Model(tt).Where("id = ?", typeID).Where("event_id = ?", eventID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrTicketTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

// Sales aggregates the ticket rows of one event.
type Sales struct {
	EventID    string          `bun:"event_id"`
	TicketRows int             `bun:"ticket_rows"`
	Units      int             `bun:"units"`
	Revenue    decimal.Decimal `bun:"revenue"`
}

// SalesByEvent returns per-event ticket aggregates. Revenue and units leave cancelled tickets out
// while TicketRows counts every row, since any row blocks deletion.
func (d *DB) SalesByEvent(ctx context.Context, db bun.IDB, eventIDs []string) (map[string]Sales, error) {
	out := make(map[string]Sales, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}

	var rows []Sales
	err := db.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("event_id").
		ColumnExpr("COUNT(*) AS ticket_rows").
		ColumnExpr("COALESCE(SUM(CASE WHEN payment_status <> ? THEN quantity ELSE 0 END), 0) AS units", models.PaymentCancelled).
		ColumnExpr("COALESCE(SUM(CASE WHEN payment_status <> ? THEN total_price ELSE 0 END), 0) AS revenue", models.PaymentCancelled).
		Where("event_id IN (?)", bun.In(eventIDs)).
		Group("event_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sales by event: %w", err)
	}
	for _, r := range rows {
		r.Revenue = r.Revenue.Round(2)
		out[r.EventID] = r
	}
	return out, nil
}

// CountTickets counts every ticket row of the event, cancelled ones included.
func (d *DB) CountTickets(ctx context.Context, db bun.IDB, eventID string) (int, error) {
	n, err := db.NewSelect().Model((*models.Ticket)(nil)).Where("event_id = ?", eventID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return n, nil
}
