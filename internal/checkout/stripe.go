package checkout

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	API *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{API: client.New(secretKey, nil)}
}

func (g *StripeGateway) CreateSession(ctx context.Context, p CreateParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.ProductName),
					},
					UnitAmount: stripe.Int64(p.UnitAmount),
				},
				Quantity: stripe.Int64(p.Quantity),
			},
		},
	}
	if p.CustomerRef != "" {
		params.ClientReferenceID = stripe.String(p.CustomerRef)
	}
	for k, v := range p.Metadata.ToMap() {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.API.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return fromStripe(s), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.API.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session %s: %w", id, err)
	}
	return fromStripe(s), nil
}

func (g *StripeGateway) ExpireSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	s, err := g.API.CheckoutSessions.Expire(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe expire checkout session %s: %w", id, err)
	}
	return fromStripe(s), nil
}

func fromStripe(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}
