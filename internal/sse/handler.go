package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"event-ticketing/internal/logger"
)

const keepAliveInterval = 25 * time.Second

type Handler struct {
	Emitter *AvailabilityEmitter
	Logger  *logger.Logger
}

// StreamAvailability serves GET /api/events/{id}/availability as text/event-stream.
func (h *Handler) StreamAvailability(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	eventID := chi.URLParam(r, "id")

	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.Logger.Debug("SSE", fmt.Sprintf("Cannot lift write deadline for %s: %v", eventID, err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	updates := h.Emitter.Subscribe(r.Context(), eventID)
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case u, open := <-updates:
			if !open {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to marshal availability update: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: availability\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
