package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// CanTransitionTo lists the only mutations a ticket allows after creation.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && (next == PaymentPaid || next == PaymentCancelled)
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID                string          `bun:"id,pk" json:"id"`
	EventID           string          `bun:"event_id,notnull" json:"event_id"`
	UserID            string          `bun:"user_id,notnull" json:"user_id"`
	TicketTypeID      string          `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	Quantity          int             `bun:"quantity,notnull" json:"quantity"`
	TotalPrice        decimal.Decimal `bun:"total_price,type:numeric(12,2),notnull" json:"total_price"`
	PaymentStatus     PaymentStatus   `bun:"payment_status,notnull" json:"payment_status"`
	PaymentReference  string          `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	CheckoutSessionID string          `bun:"checkout_session_id,nullzero,unique" json:"checkout_session_id,omitempty"`
	PurchasedAt       time.Time       `bun:"purchased_at,notnull" json:"purchased_at"`
	PaidAt            *time.Time      `bun:"paid_at" json:"paid_at,omitempty"`
	QRPayload         string          `bun:"qr_payload,notnull" json:"qr_payload"`

	Event      *Event      `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
	TicketType *TicketType `bun:"rel:belongs-to,join:ticket_type_id=id" json:"ticket_type,omitempty"`
}
