package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"event-ticketing/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// TierSalesData is the raw per ticket type aggregate of one event.
type TierSalesData struct {
	TicketTypeID string          `bun:"ticket_type_id"`
	Name         string          `bun:"name"`
	Price        decimal.Decimal `bun:"price"`
	Total        int             `bun:"total_quantity"`
	Available    int             `bun:"available_quantity"`
	TicketsSold  int             `bun:"tickets_sold"`
	Revenue      decimal.Decimal `bun:"revenue"`
}

// GetTierSalesByEventID lists every ticket type of the event with its sales, cancelled tickets excluded.
func (db *DB) GetTierSalesByEventID(ctx context.Context, eventID string) ([]TierSalesData, error) {
	var rows []TierSalesData
	err := db.bun.NewSelect().
		TableExpr("ticket_types AS tt").
		ColumnExpr("tt.id AS ticket_type_id").
		ColumnExpr("tt.name, tt.price, tt.total_quantity, tt.available_quantity").
		ColumnExpr("COALESCE(SUM(t.quantity), 0) AS tickets_sold").
		ColumnExpr("COALESCE(SUM(t.total_price), 0) AS revenue").
		Join("LEFT JOIN tickets AS t ON t.ticket_type_id = tt.id AND t.payment_status <> ?", models.PaymentCancelled).
		Where("tt.event_id = ?", eventID).
		GroupExpr("tt.id, tt.name, tt.price, tt.total_quantity, tt.available_quantity").
		OrderExpr("tt.name").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("tier sales of event %s: %w", eventID, err)
	}
	return rows, nil
}

// SaleRecord is one non-cancelled ticket row, used for the daily breakdown.
type SaleRecord struct {
	PurchasedAt time.Time       `bun:"purchased_at"`
	Quantity    int             `bun:"quantity"`
	TotalPrice  decimal.Decimal `bun:"total_price"`
}

func (db *DB) GetSalesByEventID(ctx context.Context, eventID string) ([]SaleRecord, error) {
	var rows []SaleRecord
	err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("purchased_at", "quantity", "total_price").
		Where("event_id = ?", eventID).
		Where("payment_status <> ?", models.PaymentCancelled).
		Order("purchased_at").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("sales of event %s: %w", eventID, err)
	}
	return rows, nil
}
