package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"event-ticketing/internal/models"
)

var ErrInvalidPayload = errors.New("invalid qr payload")

// Payload is what a scanner reads back from the printed code.
type Payload struct {
	TicketID string    `json:"ticket_id"`
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// Generator signs ticket payloads with HMAC-SHA256 and renders them as PNG codes.
type Generator struct {
	secret []byte
	size   int
}

func NewGenerator(secret string, size int) *Generator {
	hashed := sha256.Sum256([]byte(secret))
	if size <= 0 {
		size = 256
	}
	return &Generator{secret: hashed[:], size: size}
}

// Sign produces "<base64url(json)>.<base64url(mac)>" for the ticket.
func (g *Generator) Sign(ticket *models.Ticket) (string, error) {
	data, err := json.Marshal(Payload{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		UserID:   ticket.UserID,
		IssuedAt: ticket.PurchasedAt.UTC(),
	})
	if err != nil {
		return "", err
	}

	body := base64.RawURLEncoding.EncodeToString(data)
	return body + "." + base64.RawURLEncoding.EncodeToString(g.mac(body)), nil
}

func (g *Generator) Verify(token string) (*Payload, error) {
	body, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || body == "" || sig == "" {
		return nil, ErrInvalidPayload
	}

	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, g.mac(body)) {
		return nil, ErrInvalidPayload
	}

	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidPayload
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil || p.TicketID == "" {
		return nil, ErrInvalidPayload
	}
	return &p, nil
}

func (g *Generator) PNG(token string) ([]byte, error) {
	return qrcode.Encode(token, qrcode.Medium, g.size)
}

func (g *Generator) mac(body string) []byte {
	m := hmac.New(sha256.New, g.secret)
	m.Write([]byte(body))
	return m.Sum(nil)
}
