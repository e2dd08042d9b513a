package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/live-assist/voice-platform/internal/queue"
)

// Pinger reports backing-store liveness. The in-memory store does not
// implement it and is always considered ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store      Pinger
	natsClient *queue.Client
	asyncMode  bool
}

// NewHealthHandler creates a new health handler. natsClient may be nil
// when finalization runs synchronously.
func NewHealthHandler(store Pinger, natsClient *queue.Client, asyncMode bool) *HealthHandler {
	return &HealthHandler{
		store:      store,
		natsClient: natsClient,
		asyncMode:  asyncMode,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "database unreachable",
			})
			return
		}
	}

	if h.asyncMode && (h.natsClient == nil || !h.natsClient.IsConnected()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
