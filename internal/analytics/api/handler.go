package analytics_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"event-ticketing/internal/analytics"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Auth    *auth.Authenticator
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, authenticator *auth.Authenticator, log *logger.Logger) *Handler {
	return &Handler{Service: service, Auth: authenticator, Logger: log}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireCapability(models.CapViewDashboard))
		r.Get("/api/organizer/dashboard", h.GetDashboard)
		r.Get("/api/organizer/events/{id}/analytics", h.GetEventAnalytics)
	})
}

// GetDashboard handles GET /api/organizer/dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	dashboard, err := h.Service.GetDashboard(r.Context(), user)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Dashboard for %s failed: %v", user.ID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", dashboard)
}

// GetEventAnalytics handles GET /api/organizer/events/{id}/analytics
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	result, err := h.Service.GetEventAnalytics(r.Context(), auth.CurrentUser(r.Context()), eventID)
	if err != nil {
		h.Logger.Debug("ANALYTICS", fmt.Sprintf("Analytics for event %s refused: %v", eventID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "", result)
}
