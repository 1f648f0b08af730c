package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID                string          `bun:"id,pk" json:"id"`
	EventID           string          `bun:"event_id,notnull" json:"event_id"`
	Name              string          `bun:"name,notnull" json:"name"`
	Price             decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
	TotalQuantity     int             `bun:"total_quantity,notnull" json:"total_quantity"`
	AvailableQuantity int             `bun:"available_quantity,notnull" json:"available_quantity"`
	CreatedAt         time.Time       `bun:"created_at,notnull" json:"created_at"`
}

func (t *TicketType) Sold() int {
	return t.TotalQuantity - t.AvailableQuantity
}

func (t *TicketType) HasSales() bool {
	return t.AvailableQuantity < t.TotalQuantity
}

func (t *TicketType) IsAvailable() bool {
	return t.AvailableQuantity > 0
}

// PriceFor returns quantity x unit price.
func (t *TicketType) PriceFor(quantity int) decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(int64(quantity)))
}

// UnitAmountMinor converts the unit price to the currency's minor unit (cents).
func (t *TicketType) UnitAmountMinor() int64 {
	return t.Price.Shift(2).Round(0).IntPart()
}
