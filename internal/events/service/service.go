package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	eventsdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"
)

// ImageStore removes event images that are no longer referenced.
type ImageStore interface {
	Delete(publicURL string) error
}

type TicketTypeInput struct {
	Name          string          `json:"name" validate:"required,max=100"`
	Price         decimal.Decimal `json:"price"`
	TotalQuantity int             `json:"total_quantity" validate:"gt=0"`
}

type EventInput struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"required"`
	Category    string            `json:"category" validate:"required,max=100"`
	StartsAt    time.Time         `json:"starts_at" validate:"required"`
	Location    string            `json:"location" validate:"required,max=200"`
	ImageURL    string            `json:"image_url,omitempty"`
	TicketTypes []TicketTypeInput `json:"ticket_types" validate:"dive"`
}

// ListParams are the raw query parameters of the public listing.
type ListParams struct {
	Search    string
	Category  string
	Location  string
	Status    string
	PriceSort string
}

// EventView is an event with the figures derived at read time.
type EventView struct {
	*models.Event
	Status       models.EventStatus `json:"status"`
	TicketsSold  int                `json:"tickets_sold"`
	Revenue      decimal.Decimal    `json:"revenue"`
	Available    int                `json:"available_tickets"`
	SoldOut      bool               `json:"sold_out"`
	CanBeDeleted bool               `json:"can_be_deleted"`
}

type Filters struct {
	Categories []string `json:"categories"`
	Locations  []string `json:"locations"`
}

type Service struct {
	DB        *eventsdb.DB
	Images    ImageStore
	Publisher kafka.Publisher
	Topics    config.TopicConfig
	Clock     clock.Clock
	Logger    *logger.Logger
}

func NewService(db *bun.DB, images ImageStore, publisher kafka.Publisher, topics config.TopicConfig, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		DB:        &eventsdb.DB{Bun: db},
		Images:    images,
		Publisher: publisher,
		Topics:    topics,
		Clock:     clk,
		Logger:    log,
	}
}

func validateEvent(in EventInput, requireTypes bool) error {
	if err := utils.Validate(in); err != nil {
		return err
	}
	if requireTypes && len(in.TicketTypes) == 0 {
		return apperr.Validation("invalid_ticket_types", "at least one ticket type is required")
	}
	for _, tt := range in.TicketTypes {
		if err := validateTicketType(tt); err != nil {
			return err
		}
	}
	return nil
}

func validateTicketType(in TicketTypeInput) error {
	if err := utils.Validate(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return apperr.Validation("invalid_price", "price cannot be negative")
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		return apperr.Validation("invalid_price", "price cannot have more than 2 decimal places")
	}
	return nil
}

func (s *Service) newTicketTypes(eventID string, inputs []TicketTypeInput, now time.Time) []*models.TicketType {
	types := make([]*models.TicketType, 0, len(inputs))
	for _, in := range inputs {
		types = append(types, &models.TicketType{
			ID:                uuid.NewString(),
			EventID:           eventID,
			Name:              strings.TrimSpace(in.Name),
			Price:             in.Price,
			TotalQuantity:     in.TotalQuantity,
			AvailableQuantity: in.TotalQuantity,
			CreatedAt:         now,
		})
	}
	return types
}

func canManage(actor *models.User) error {
	if actor == nil {
		return apperr.ErrUnauthorized
	}
	if !actor.Role.Can(models.CapManageEvents) {
		return apperr.ErrForbidden.With("only organizers can manage events")
	}
	return nil
}

func ensureOwner(actor *models.User, event *models.Event) error {
	if err := canManage(actor); err != nil {
		return err
	}
	if event.OrganizerID != actor.ID {
		return apperr.ErrForbidden.With("you can only manage your own events")
	}
	return nil
}

// Create stores the event and its ticket types in one transaction.
func (s *Service) Create(ctx context.Context, actor *models.User, in EventInput) (*EventView, error) {
	if err := canManage(actor); err != nil {
		return nil, err
	}
	if err := validateEvent(in, true); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	event := &models.Event{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		StartsAt:    in.StartsAt.UTC(),
		Location:    strings.TrimSpace(in.Location),
		ImageURL:    in.ImageURL,
		OrganizerID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	event.TicketTypes = s.newTicketTypes(event.ID, in.TicketTypes, now)

	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.DB.InsertEvent(ctx, tx, event); err != nil {
			return err
		}
		return s.DB.InsertTicketTypes(ctx, tx, event.TicketTypes)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("EVENTS", fmt.Sprintf("Event %s created by %s with %d ticket types", event.ID, actor.ID, len(event.TicketTypes)))
	s.publish(ctx, event.ID, "event.created", event)
	return s.view(event, eventsdb.Sales{}), nil
}

func (s *Service) Get(ctx context.Context, id string) (*EventView, error) {
	event, err := s.DB.GetEvent(ctx, s.DB.Bun, id)
	if err != nil {
		return nil, err
	}
	sales, err := s.DB.SalesByEvent(ctx, s.DB.Bun, []string{id})
	if err != nil {
		return nil, err
	}
	return s.view(event, sales[id]), nil
}

func (s *Service) List(ctx context.Context, p ListParams) ([]*EventView, error) {
	status := models.EventStatus(strings.ToLower(strings.TrimSpace(p.Status)))
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("invalid_status", "status must be one of upcoming, ongoing, past")
	}
	sort := strings.ToLower(strings.TrimSpace(p.PriceSort))
	if sort != "" && sort != "asc" && sort != "desc" {
		return nil, apperr.Validation("invalid_price_sort", "price_sort must be asc or desc")
	}

	return s.list(ctx, eventsdb.Filter{
		Search:    p.Search,
		Category:  strings.TrimSpace(p.Category),
		Location:  strings.TrimSpace(p.Location),
		Status:    status,
		PriceSort: sort,
	})
}

// ListByOrganizer returns the actor's own events, newest start first.
func (s *Service) ListByOrganizer(ctx context.Context, actor *models.User) ([]*EventView, error) {
	if err := canManage(actor); err != nil {
		return nil, err
	}
	return s.list(ctx, eventsdb.Filter{OrganizerID: actor.ID})
}

func (s *Service) list(ctx context.Context, f eventsdb.Filter) ([]*EventView, error) {
	f.Now = s.Clock.Now()
	events, err := s.DB.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	sales, err := s.DB.SalesByEvent(ctx, s.DB.Bun, ids)
	if err != nil {
		return nil, err
	}

	views := make([]*EventView, 0, len(events))
	for _, e := range events {
		views = append(views, s.view(e, sales[e.ID]))
	}
	return views, nil
}

func (s *Service) Filters(ctx context.Context) (*Filters, error) {
	categories, err := s.DB.Distinct(ctx, "category")
	if err != nil {
		return nil, err
	}
	locations, err := s.DB.Distinct(ctx, "location")
	if err != nil {
		return nil, err
	}
	return &Filters{Categories: categories, Locations: locations}, nil
}

// Update rewrites the event fields. With replaceTypes the ticket types are swapped for in.TicketTypes,
// which fails with ErrTicketTypeSold as soon as one existing type has sales.
func (s *Service) Update(ctx context.Context, actor *models.User, id string, in EventInput, replaceTypes bool) (*EventView, error) {
	if err := canManage(actor); err != nil {
		return nil, err
	}
	if err := validateEvent(in, replaceTypes); err != nil {
		return nil, err
	}

	var oldImage string
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := s.DB.GetEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ensureOwner(actor, event); err != nil {
			return err
		}

		now := s.Clock.Now()
		event.Title = strings.TrimSpace(in.Title)
		event.Description = strings.TrimSpace(in.Description)
		event.Category = strings.TrimSpace(in.Category)
		event.StartsAt = in.StartsAt.UTC()
		event.Location = strings.TrimSpace(in.Location)
		event.UpdatedAt = now
		if in.ImageURL != "" && in.ImageURL != event.ImageURL {
			oldImage = event.ImageURL
			event.ImageURL = in.ImageURL
		}

		if replaceTypes {
			remaining, err := s.DB.DeleteUnsoldTicketTypes(ctx, tx, id)
			if err != nil {
				return err
			}
			if len(remaining) > 0 {
				return apperr.ErrTicketTypeSold.With(
					"tickets have already been sold for: " + strings.Join(remaining, ", "))
			}
			if err := s.DB.InsertTicketTypes(ctx, tx, s.newTicketTypes(id, in.TicketTypes, now)); err != nil {
				return err
			}
		}

		return s.DB.UpdateEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	s.removeImage(oldImage)
	view, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("EVENTS", fmt.Sprintf("Event %s updated by %s (replace ticket types: %t)", id, actor.ID, replaceTypes))
	s.publish(ctx, id, "event.updated", view.Event)
	return view, nil
}

// Delete removes an event and its ticket types when no ticket was ever issued for it.
func (s *Service) Delete(ctx context.Context, actor *models.User, id string) error {
	var image string
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := s.DB.GetEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ensureOwner(actor, event); err != nil {
			return err
		}

		count, err := s.DB.CountTickets(ctx, tx, id)
		if err != nil {
			return err
		}
		if count > 0 || event.HasSales() {
			return apperr.ErrEventHasSales
		}

		image = event.ImageURL
		return s.DB.DeleteEvent(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	s.removeImage(image)
	s.Logger.Info("EVENTS", fmt.Sprintf("Event %s deleted by %s", id, actor.ID))
	s.publish(ctx, id, "event.deleted", map[string]string{"id": id})
	return nil
}

func (s *Service) AddTicketType(ctx context.Context, actor *models.User, eventID string, in TicketTypeInput) (*models.TicketType, error) {
	if err := validateTicketType(in); err != nil {
		return nil, err
	}

	var tt *models.TicketType
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := s.DB.GetEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if err := ensureOwner(actor, event); err != nil {
			return err
		}
		tt = s.newTicketTypes(eventID, []TicketTypeInput{in}, s.Clock.Now())[0]
		return s.DB.InsertTicketTypes(ctx, tx, []*models.TicketType{tt})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventID, "ticket_type.created", tt)
	return tt, nil
}

// UpdateTicketType edits a single type. Stock is reset to the new total, so any sale rejects it.
func (s *Service) UpdateTicketType(ctx context.Context, actor *models.User, eventID, typeID string, in TicketTypeInput) (*models.TicketType, error) {
	if err := validateTicketType(in); err != nil {
		return nil, err
	}

	var tt *models.TicketType
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := s.DB.GetEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if err := ensureOwner(actor, event); err != nil {
			return err
		}
		if _, err := s.DB.GetTicketType(ctx, tx, eventID, typeID); err != nil {
			return err
		}

		ok, err := s.DB.UpdateUnsoldTicketType(ctx, tx, &models.TicketType{
			ID:            typeID,
			EventID:       eventID,
			Name:          strings.TrimSpace(in.Name),
			Price:         in.Price,
			TotalQuantity: in.TotalQuantity,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrTicketTypeSold
		}
		tt, err = s.DB.GetTicketType(ctx, tx, eventID, typeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, eventID, "ticket_type.updated", tt)
	return tt, nil
}

func (s *Service) DeleteTicketType(ctx context.Context, actor *models.User, eventID, typeID string) error {
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := s.DB.GetEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if err := ensureOwner(actor, event); err != nil {
			return err
		}
		if _, err := s.DB.GetTicketType(ctx, tx, eventID, typeID); err != nil {
			return err
		}

		ok, err := s.DB.DeleteUnsoldTicketType(ctx, tx, eventID, typeID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrTicketTypeSold
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, eventID, "ticket_type.deleted", map[string]string{"id": typeID, "event_id": eventID})
	return nil
}

func (s *Service) view(e *models.Event, sales eventsdb.Sales) *EventView {
	return &EventView{
		Event:        e,
		Status:       e.Status(s.Clock.Now()),
		TicketsSold:  e.UnitsSold(),
		Revenue:      sales.Revenue,
		Available:    e.Available(),
		SoldOut:      e.SoldOut(),
		CanBeDeleted: sales.TicketRows == 0 && !e.HasSales(),
	}
}

func (s *Service) removeImage(url string) {
	if url == "" || s.Images == nil {
		return
	}
	if err := s.Images.Delete(url); err != nil {
		s.Logger.Warn("EVENTS", fmt.Sprintf("Failed to remove image %s: %v", url, err))
	}
}

func (s *Service) publish(ctx context.Context, key, eventType string, data any) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, s.Topics.EventChanged, key, eventType, data); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", eventType, key, err))
	}
}
