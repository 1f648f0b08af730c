package ticket_api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/inventory"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	tickets "event-ticketing/internal/tickets/service"
	"event-ticketing/internal/utils"
)

const historyPath = "/tickets"

type Handler struct {
	TicketService *tickets.TicketService
	Inventory     *inventory.Service
	Auth          *auth.Authenticator
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, inv *inventory.Service, authenticator *auth.Authenticator, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Inventory: inv, Auth: authenticator, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.With(h.Auth.RequireCapability(models.CapBuyTickets)).Post("/api/events/{id}/tickets", h.Purchase)
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireLogin)
		r.Get("/api/tickets", h.History)
		r.Get("/api/tickets/{id}", h.GetTicket)
		r.Get("/api/tickets/{id}/qr.png", h.QRCode)
		r.Post("/api/tickets/{id}/cancel", h.Cancel)
	})
	r.With(h.Auth.RequireCapability(models.CapManageEvents)).Post("/api/organizer/tickets/verify", h.Verify)
}

type purchaseRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// Purchase reserves tickets without card payment; the ticket stays pending until cancelled.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	back := "/events/" + eventID

	var in purchaseRequest
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

	user := auth.CurrentUser(r.Context())
	ticket, err := h.Inventory.Reserve(r.Context(), inventory.Request{
		EventID:      eventID,
		TicketTypeID: in.TicketTypeID,
		UserID:       user.ID,
		Quantity:     in.Quantity,
	})
	if err != nil {
		h.Auth.Fail(w, r, err, back)
		return
	}
	h.Auth.Succeed(w, r, http.StatusCreated,
		fmt.Sprintf("Purchased %d ticket(s), total price %s.", ticket.Quantity, ticket.TotalPrice.StringFixed(2)),
		ticket, historyPath)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.History(r.Context(), auth.CurrentUser(r.Context()).ID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", list)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", ticket)
}

func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	png, err := h.TicketService.QRCode(r.Context(), auth.CurrentUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("QRCode: failed to write image: %v", err))
	}
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Inventory.CancelPending(r.Context(), chi.URLParam(r, "id"), auth.CurrentUser(r.Context()).ID)
	if err != nil {
		h.Auth.Fail(w, r, err, historyPath)
		return
	}
	h.Auth.Succeed(w, r, http.StatusOK, "Your ticket has been cancelled.", ticket, historyPath)
}

type verifyRequest struct {
	QRPayload string `json:"qr_payload"`
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var in verifyRequest
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.WriteError(w, err)
		return
	}
	result, err := h.TicketService.Verify(r.Context(), auth.CurrentUser(r.Context()), in.QRPayload)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", result)
}
