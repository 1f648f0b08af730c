package checkout

import (
	"context"
	"fmt"
	"strconv"

	"event-ticketing/internal/apperr"
)

// Session states as reported by the payment provider.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"

	PaymentPaid   = "paid"
	PaymentUnpaid = "unpaid"
)

// Metadata is attached to a provider session when it is created and read back on completion.
type Metadata struct {
	EventID      string
	TicketTypeID string
	Quantity     int
	BuyerID      string
}

func (m Metadata) ToMap() map[string]string {
	return map[string]string{
		"event_id":       m.EventID,
		"ticket_type_id": m.TicketTypeID,
		"quantity":       strconv.Itoa(m.Quantity),
		"buyer_id":       m.BuyerID,
	}
}

// MetadataFromMap rejects sessions that were not created by this service.
func MetadataFromMap(raw map[string]string) (Metadata, error) {
	m := Metadata{
		EventID:      raw["event_id"],
		TicketTypeID: raw["ticket_type_id"],
		BuyerID:      raw["buyer_id"],
	}
	if m.EventID == "" || m.TicketTypeID == "" || m.BuyerID == "" {
		return m, apperr.ErrInvalidSession.With("the checkout session is missing its ticket details")
	}
	qty, err := strconv.Atoi(raw["quantity"])
	if err != nil || qty <= 0 {
		return m, apperr.ErrInvalidSession.With(fmt.Sprintf("the checkout session has an invalid quantity %q", raw["quantity"]))
	}
	m.Quantity = qty
	return m, nil
}

// Session is the provider-neutral view of a checkout session.
type Session struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        map[string]string
}

// CreateParams describes a single line item payment.
type CreateParams struct {
	ProductName string
	UnitAmount  int64
	Quantity    int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	CustomerRef string
	Metadata    Metadata
}

// Gateway is the payment provider collaborator.
type Gateway interface {
	CreateSession(ctx context.Context, p CreateParams) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ExpireSession(ctx context.Context, id string) (*Session, error)
}
