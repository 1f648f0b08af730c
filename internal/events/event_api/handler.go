package event_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/auth"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/sse"
	"event-ticketing/internal/uploads"
	"event-ticketing/internal/utils"
)

const organizerEventsPath = "/organizer/events"

// Accepted starts_at layouts: RFC 3339 from API clients and the datetime-local value of HTML forms.
var startsAtLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

type Handler struct {
	Events  *events.Service
	Auth    *auth.Authenticator
	Uploads *uploads.Store
	Stream  *sse.Handler
	Logger  *logger.Logger
}

func NewHandler(svc *events.Service, authenticator *auth.Authenticator, store *uploads.Store, stream *sse.Handler, log *logger.Logger) *Handler {
	return &Handler{Events: svc, Auth: authenticator, Uploads: store, Stream: stream, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/filters", h.Filters)
		r.Get("/{id}", h.Get)
		if h.Stream != nil {
			r.Get("/{id}/availability", h.Stream.StreamAvailability)
		}

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireCapability(models.CapManageEvents))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Post("/{id}/edit", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}/delete", h.Delete)
			r.Post("/{id}/ticket-types", h.AddTicketType)
			r.Put("/{id}/ticket-types/{typeId}", h.UpdateTicketType)
			r.Delete("/{id}/ticket-types/{typeId}", h.DeleteTicketType)
		})
	})

	r.With(h.Auth.RequireCapability(models.CapManageEvents)).Get("/api/organizer/events", h.ListMine)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.Events.List(r.Context(), events.ListParams{
		Search:    q.Get("search"),
		Category:  q.Get("category"),
		Location:  q.Get("location"),
		Status:    q.Get("status"),
		PriceSort: q.Get("price_sort"),
	})
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", views)
}

func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.Events.Filters(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", filters)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", view)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	views, err := h.Events.ListByOrganizer(r.Context(), auth.CurrentUser(r.Context()))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", views)
}

// eventPayload is the JSON body of create and update.
type eventPayload struct {
	events.EventInput
	ReplaceTicketTypes bool `json:"replace_ticket_types"`
}

// readEvent decodes a JSON body or a (multipart) form. An uploaded image is stored right away and
// its public URL returned so the caller can remove it when the service rejects the payload.
func (h *Handler) readEvent(r *http.Request) (eventPayload, string, error) {
	var p eventPayload
	if auth.IsJSONBody(r) {
		err := utils.DecodeJSON(r, &p)
		return p, "", err
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return p, "", apperr.ErrInvalidRequest.With("invalid multipart form")
		}
		if err := r.ParseForm(); err != nil {
			return p, "", apperr.ErrInvalidRequest
		}
	}

	p.Title = r.FormValue("title")
	p.Description = r.FormValue("description")
	p.Category = r.FormValue("category")
	p.Location = r.FormValue("location")
	p.ReplaceTicketTypes, _ = strconv.ParseBool(r.FormValue("replace_ticket_types"))

	if raw := strings.TrimSpace(r.FormValue("starts_at")); raw != "" {
		startsAt, err := parseStartsAt(raw)
		if err != nil {
			return p, "", err
		}
		p.StartsAt = startsAt
	}
	if raw := strings.TrimSpace(r.FormValue("ticket_types")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.TicketTypes); err != nil {
			return p, "", apperr.Validation("invalid_ticket_types", "ticket_types must be a JSON array of {name, price, total_quantity}")
		}
	}

	if r.MultipartForm != nil && len(r.MultipartForm.File["image"]) > 0 {
		publicURL, err := h.Uploads.Save(r.MultipartForm.File["image"][0], uploads.EventImage)
		if err != nil {
			return p, "", err
		}
		p.ImageURL = publicURL
		return p, publicURL, nil
	}
	return p, "", nil
}

func parseStartsAt(raw string) (time.Time, error) {
	for _, layout := range startsAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("invalid_starts_at", "starts_at must be a date and time such as 2026-06-01T20:00")
}

func (h *Handler) discard(saved string) {
	if saved == "" {
		return
	}
	if err := h.Uploads.Delete(saved); err != nil {
		h.Logger.Warn("UPLOADS", fmt.Sprintf("Failed to remove %s: %v", saved, err))
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, saved, err := h.readEvent(r)
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}

	view, err := h.Events.Create(r.Context(), auth.CurrentUser(r.Context()), p.EventInput)
	if err != nil {
		h.discard(saved)
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusCreated, fmt.Sprintf("The event %q has been created.", view.Title), view, organizerEventsPath)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, saved, err := h.readEvent(r)
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	if replace, err := strconv.ParseBool(r.URL.Query().Get("replace_ticket_types")); err == nil {
		p.ReplaceTicketTypes = replace
	}

	view, err := h.Events.Update(r.Context(), auth.CurrentUser(r.Context()), id, p.EventInput, p.ReplaceTicketTypes)
	if err != nil {
		h.discard(saved)
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, fmt.Sprintf("The event %q has been updated.", view.Title), view, organizerEventsPath)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Events.Delete(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, "The event has been deleted.", nil, organizerEventsPath)
}

func readTicketType(r *http.Request) (events.TicketTypeInput, error) {
	var in events.TicketTypeInput
	if auth.IsJSONBody(r) {
		return in, utils.DecodeJSON(r, &in)
	}
	if err := r.ParseForm(); err != nil {
		return in, apperr.ErrInvalidRequest
	}

	in.Name = r.PostForm.Get("name")
	price, err := decimal.NewFromString(strings.TrimSpace(r.PostForm.Get("price")))
	if err != nil {
		return in, apperr.Validation("invalid_price", "price must be a number")
	}
	in.Price = price
	quantity, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("total_quantity")))
	if err != nil {
		return in, apperr.Validation("invalid_quantity", "total_quantity must be a whole number")
	}
	in.TotalQuantity = quantity
	return in, nil
}

func (h *Handler) AddTicketType(w http.ResponseWriter, r *http.Request) {
	in, err := readTicketType(r)
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	tt, err := h.Events.AddTicketType(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusCreated, fmt.Sprintf("Ticket type %q added.", tt.Name), tt, organizerEventsPath)
}

func (h *Handler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	in, err := readTicketType(r)
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	tt, err := h.Events.UpdateTicketType(r.Context(), auth.CurrentUser(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "typeId"), in)
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, fmt.Sprintf("Ticket type %q updated.", tt.Name), tt, organizerEventsPath)
}

func (h *Handler) DeleteTicketType(w http.ResponseWriter, r *http.Request) {
	err := h.Events.DeleteTicketType(r.Context(), auth.CurrentUser(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "typeId"))
	if err != nil {
		h.Auth.Fail(w, r, err, organizerEventsPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, "Ticket type deleted.", nil, organizerEventsPath)
}
