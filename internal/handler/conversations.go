// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/live-assist/voice-platform/internal/middleware"
	"github.com/live-assist/voice-platform/internal/model"
	"github.com/live-assist/voice-platform/internal/service"
	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service   *service.ConversationService
	finalizer *service.FinalizeOrchestrator
	logger    *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, fin *service.FinalizeOrchestrator, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service:   svc,
		finalizer: fin,
		logger:    log,
	}
}

// Save handles POST /api/v1/conversations/save
func (h *ConversationHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SaveConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ConversationID == "" || middleware.ValidateConversationID(req.ConversationID) != nil {
		// Without a usable record id the session key is the only route to
		// the record.
		if err := middleware.ValidateSessionID(req.SessionID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := middleware.ValidateTranscriptText(req.UserText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateTranscriptText(req.AIText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateOwnerName(req.OwnerName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, created, err := h.service.Save(ctx, &req)
	if err != nil {
		h.logger.Error("failed to save conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save conversation")
		return
	}

	finalized := false
	if req.Finalize {
		finalized, err = h.finalizer.Finalize(ctx, rec.ID, &req)
		if err != nil {
			h.logger.Error("failed to finalize conversation",
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to finalize conversation")
			return
		}
		if finalized {
			// Re-read so the response reflects any synchronously persisted
			// analysis.
			if fresh, err := h.service.Get(ctx, rec.ID); err == nil {
				rec = fresh
			}
		}
	}

	status := "updated"
	if created {
		status = "created"
	}
	writeJSON(w, http.StatusOK, buildSaveResponse(status, finalized, rec))
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 0)
	days := queryInt(q.Get("days"), 0)

	resp, err := h.service.List(r.Context(), limit, days, q.Get("session_id"), q.Get("user_name"))
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to get conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get conversation")
		return
	}

	writeJSON(w, http.StatusOK, buildDetail(rec))
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to delete conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/conversations/stats
func (h *ConversationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r.URL.Query().Get("hours"), 24)
	if hours < 1 || hours > 720 {
		hours = 24
	}

	resp, err := h.service.Stats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.logger.Error("failed to aggregate stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func buildSaveResponse(status string, finalized bool, rec *model.ConversationRecord) *model.SaveConversationResponse {
	resp := &model.SaveConversationResponse{
		Status:       status,
		ID:           rec.ID,
		SessionID:    rec.SessionKey,
		OwnerName:    rec.OwnerName,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    rec.UpdatedAt.Format(time.RFC3339),
		LastActivity: rec.LastActivityAt.Format(time.RFC3339),
		Finalized:    finalized,
	}
	if a := rec.Analysis; a != nil {
		resp.Summary = a.Summary
		resp.SatisfactionRating = a.SatisfactionRating
		resp.SatisfactionLabel = a.SatisfactionLabel
		resp.ConversationTopic = a.ConversationTopic
		resp.AnalysisTimestamp = a.AnalyzedAt.Format(time.RFC3339)
	}
	return resp
}

func buildDetail(rec *model.ConversationRecord) *model.ConversationDetail {
	detail := &model.ConversationDetail{
		ID:           rec.ID,
		SessionID:    rec.SessionKey,
		OwnerName:    rec.OwnerName,
		Conversation: rec.Transcript,
		LastActivity: rec.LastActivityAt.Format(time.RFC3339),
	}
	if a := rec.Analysis; a != nil {
		detail.Summary = a.Summary
		detail.SatisfactionRating = a.SatisfactionRating
		detail.SatisfactionLabel = a.SatisfactionLabel
		detail.ConversationTopic = a.ConversationTopic
		detail.AnalysisTimestamp = a.AnalyzedAt.Format(time.RFC3339)
	}
	return detail
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	return fallback
}
