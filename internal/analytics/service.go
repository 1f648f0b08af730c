package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"event-ticketing/internal/apperr"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/models"
)

// Service handles analytics operations
type Service struct {
	db     *DB
	events *events.Service
}

func NewService(db *bun.DB, eventService *events.Service) *Service {
	return &Service{db: NewDB(db), events: eventService}
}

// EventSales is one row of the organizer dashboard.
type EventSales struct {
	EventID      string             `json:"event_id"`
	Title        string             `json:"title"`
	StartsAt     time.Time          `json:"starts_at"`
	Status       models.EventStatus `json:"status"`
	TicketsSold  int                `json:"tickets_sold"`
	Revenue      decimal.Decimal    `json:"revenue"`
	Available    int                `json:"available_tickets"`
	SoldOut      bool               `json:"sold_out"`
	CanBeDeleted bool               `json:"can_be_deleted"`
}

// Dashboard sums the organizer's events.
type Dashboard struct {
	TotalEvents      int             `json:"total_events"`
	TotalTicketsSold int             `json:"total_tickets_sold"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalAvailable   int             `json:"total_available_tickets"`
	Events           []EventSales    `json:"events"`
}

// TierSalesMetrics contains sales metrics for a specific ticket type
type TierSalesMetrics struct {
	TicketTypeID string          `json:"ticket_type_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Total        int             `json:"total_quantity"`
	Available    int             `json:"available_quantity"`
	TicketsSold  int             `json:"tickets_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date        string          `json:"date"`
	Revenue     decimal.Decimal `json:"revenue"`
	TicketsSold int             `json:"tickets_sold"`
}

// EventAnalytics represents aggregated analytics data for an event
type EventAnalytics struct {
	EventID          string              `json:"event_id"`
	TotalRevenue     decimal.Decimal     `json:"total_revenue"`
	TotalTicketsSold int                 `json:"total_tickets_sold"`
	DailySales       []DailySalesMetrics `json:"daily_sales"`
	SalesByTier      []TierSalesMetrics  `json:"sales_by_tier"`
}

// GetDashboard returns the totals of every event the actor organizes.
func (s *Service) GetDashboard(ctx context.Context, actor *models.User) (*Dashboard, error) {
	views, err := s.events.ListByOrganizer(ctx, actor)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TotalRevenue: decimal.Zero,
		Events:       make([]EventSales, 0, len(views)),
	}
	for _, v := range views {
		d.TotalEvents++
		d.TotalTicketsSold += v.TicketsSold
		d.TotalRevenue = d.TotalRevenue.Add(v.Revenue)
		d.TotalAvailable += v.Available
		d.Events = append(d.Events, EventSales{
			EventID:      v.ID,
			Title:        v.Title,
			StartsAt:     v.StartsAt,
			Status:       v.Status,
			TicketsSold:  v.TicketsSold,
			Revenue:      v.Revenue,
			Available:    v.Available,
			SoldOut:      v.SoldOut,
			CanBeDeleted: v.CanBeDeleted,
		})
	}
	return d, nil
}

// GetEventAnalytics returns the per ticket type and per day sales of an event owned by the actor.
func (s *Service) GetEventAnalytics(ctx context.Context, actor *models.User, eventID string) (*EventAnalytics, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthorized
	}
	if !actor.Role.Can(models.CapViewDashboard) {
		return nil, apperr.ErrForbidden.With("only organizers can view analytics")
	}
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != actor.ID {
		return nil, apperr.ErrForbidden.With("you can only view the analytics of your own events")
	}

	tiers, err := s.db.GetTierSalesByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	sales, err := s.db.GetSalesByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := &EventAnalytics{
		EventID:      eventID,
		TotalRevenue: decimal.Zero,
		DailySales:   make([]DailySalesMetrics, 0),
		SalesByTier:  make([]TierSalesMetrics, 0, len(tiers)),
	}
	for _, t := range tiers {
		result.TotalTicketsSold += t.TicketsSold
		result.TotalRevenue = result.TotalRevenue.Add(t.Revenue)
		result.SalesByTier = append(result.SalesByTier, TierSalesMetrics{
			TicketTypeID: t.TicketTypeID,
			Name:         t.Name,
			Price:        t.Price,
			Total:        t.Total,
			Available:    t.Available,
			TicketsSold:  t.TicketsSold,
			Revenue:      t.Revenue.Round(2),
		})
	}
	result.TotalRevenue = result.TotalRevenue.Round(2)
	result.DailySales = dailySales(sales)
	return result, nil
}

// dailySales buckets rows by UTC purchase date; rows arrive ordered by purchase time.
func dailySales(rows []SaleRecord) []DailySalesMetrics {
	out := make([]DailySalesMetrics, 0)
	for _, r := range rows {
		day := r.PurchasedAt.UTC().Format("2006-01-02")
		if n := len(out); n > 0 && out[n-1].Date == day {
			out[n-1].TicketsSold += r.Quantity
			out[n-1].Revenue = out[n-1].Revenue.Add(r.TotalPrice)
			continue
		}
		out = append(out, DailySalesMetrics{Date: day, TicketsSold: r.Quantity, Revenue: r.TotalPrice})
	}
	for i := range out {
		out[i].Revenue = out[i].Revenue.Round(2)
	}
	return out
}
