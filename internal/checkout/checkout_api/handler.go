package checkout_api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/checkout"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"
)

const ticketsPath = "/tickets"

type Handler struct {
	Checkout *checkout.Service
	Auth     *auth.Authenticator
	Logger   *logger.Logger
}

func NewHandler(svc *checkout.Service, authenticator *auth.Authenticator, log *logger.Logger) *Handler {
	return &Handler{Checkout: svc, Auth: authenticator, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.With(h.Auth.RequireCapability(models.CapBuyTickets)).Post("/api/events/{id}/checkout", h.Begin)
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireLogin)
		r.Get("/payment/success", h.Success)
		r.Get("/payment/cancel", h.Cancel)
	})
}

type beginRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// Begin sends browsers straight to the provider's payment page; API clients get the URL back.
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	back := "/events/" + eventID

	var in beginRequest
	if auth.IsJSONBody(r) {
		if err := utils.DecodeJSON(r, &in); err != nil {
			h.Auth.Fail(w, r, err, back)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.Auth.Fail(w, r, apperr.ErrInvalidRequest, back)
			return
		}
		in.TicketTypeID = r.PostForm.Get("ticket_type_id")
		qty, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("quantity")))
		if err != nil {
			h.Auth.Fail(w, r, apperr.ErrInvalidQuantity, back)
			return
		}
		in.Quantity = qty
	}

	started, err := h.Checkout.BeginCheckout(r.Context(), eventID, in.TicketTypeID, in.Quantity, auth.CurrentUser(r.Context()))
	if err != nil {
		h.Auth.Fail(w, r, err, back)
		return
	}

	if auth.WantsAPI(r) || auth.IsJSONBody(r) {
		utils.WriteSuccess(w, http.StatusCreated, "", started)
		return
	}
	http.Redirect(w, r, started.RedirectURL, http.StatusSeeOther)
}

func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	completion, err := h.Checkout.CompleteCheckout(r.Context(), r.URL.Query().Get("session_id"), auth.CurrentUser(r.Context()))
	if err != nil {
		h.Auth.Fail(w, r, err, "/")
		return
	}

	message := fmt.Sprintf("Payment confirmed! %d ticket(s) purchased for %s.",
		completion.Ticket.Quantity, completion.Ticket.TotalPrice.StringFixed(2))
	if !completion.Created {
		message = "This payment has already been confirmed."
	}
	h.Auth.Succeed(w, r, http.StatusOK, message, completion, ticketsPath)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, err := h.Checkout.CancelCheckout(r.Context(), r.URL.Query().Get("session_id"), auth.CurrentUser(r.Context()))
	back := "/"
	if eventID != "" {
		back = "/events/" + eventID
	}
	if err != nil {
		h.Auth.Fail(w, r, err, back)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, "Your payment has been cancelled.", map[string]string{"event_id": eventID}, back)
}
