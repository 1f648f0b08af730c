package models

import (
	"time"

	"github.com/uptrace/bun"
)

// EventDuration is the fixed window after the start during which an event counts as ongoing.
const EventDuration = 24 * time.Hour

type EventStatus string

const (
	StatusUpcoming EventStatus = "upcoming"
	StatusOngoing  EventStatus = "ongoing"
	StatusPast     EventStatus = "past"
)

func (s EventStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusPast:
		return true
	}
	return false
}

// EventStatusAt derives the lifecycle status. The ongoing window is closed on both ends.
func EventStatusAt(start, now time.Time) EventStatus {
	switch {
	case start.After(now):
		return StatusUpcoming
	case !now.After(start.Add(EventDuration)):
		return StatusOngoing
	default:
		return StatusPast
	}
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string        `bun:"id,pk" json:"id"`
	Title       string        `bun:"title,notnull" json:"title"`
	Description string        `bun:"description,notnull" json:"description"`
	Category    string        `bun:"category,notnull" json:"category"`
	StartsAt    time.Time     `bun:"starts_at,notnull" json:"starts_at"`
	Location    string        `bun:"location,notnull" json:"location"`
	ImageURL    string        `bun:"image_url" json:"image_url,omitempty"`
	OrganizerID string        `bun:"organizer_id,notnull" json:"organizer_id"`
	Organizer   *User         `bun:"rel:belongs-to,join:organizer_id=id" json:"-"`
	TicketTypes []*TicketType `bun:"rel:has-many,join:id=event_id" json:"ticket_types,omitempty"`
	CreatedAt   time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

func (e *Event) Status(now time.Time) EventStatus {
	return EventStatusAt(e.StartsAt, now)
}

// Available sums the remaining stock across the loaded ticket types.
func (e *Event) Available() int {
	total := 0
	for _, tt := range e.TicketTypes {
		total += tt.AvailableQuantity
	}
	return total
}

func (e *Event) UnitsSold() int {
	total := 0
	for _, tt := range e.TicketTypes {
		total += tt.Sold()
	}
	return total
}

func (e *Event) SoldOut() bool {
	for _, tt := range e.TicketTypes {
		if tt.IsAvailable() {
			return false
		}
	}
	return len(e.TicketTypes) > 0
}

// HasSales reports whether any loaded ticket type has sold a unit.
func (e *Event) HasSales() bool {
	for _, tt := range e.TicketTypes {
		if tt.HasSales() {
			return true
		}
	}
	return false
}
