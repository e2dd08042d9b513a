package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-assist/voice-platform/internal/analysis"
	"github.com/live-assist/voice-platform/internal/model"
	"github.com/live-assist/voice-platform/internal/service"
	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/pkg/logger"
)

type stubEngine struct{}

func (stubEngine) Name() string { return "openai:responses:gpt-4o-mini" }

func (stubEngine) Analyze(_ context.Context, _ string) (*analysis.Result, *analysis.RawPayload, error) {
	return &analysis.Result{
		Summary:           "Short chat about pricing.",
		Satisfaction:      analysis.Satisfaction{Rating: 4, Label: "Satisfied"},
		UserBehavior:      "curious",
		ConversationTopic: "pricing",
		FeedbackSummary:   "none",
	}, &analysis.RawPayload{Engine: "openai:responses:gpt-4o-mini"}, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *store.MemoryStore) {
	t.Helper()
	log := logger.NewNop()
	st := store.NewMemoryStore()
	svc := service.NewConversationService(st, 45*time.Minute, log)
	chain := analysis.NewChain(log, analysis.Tier{Engine: stubEngine{}, Timeout: time.Second})
	orch := service.NewFinalizeOrchestrator(st, chain, nil, false, []string{"manual_stop", "channel_closed", "close", "end"}, log)
	h := NewConversationHandler(svc, orch, log)

	r := chi.NewRouter()
	r.Route("/api/v1/conversations", func(r chi.Router) {
		r.Post("/save", h.Save)
		r.Get("/", h.List)
		r.Get("/stats", h.Stats)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	})
	return r, st
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSave(t *testing.T, rec *httptest.ResponseRecorder) model.SaveConversationResponse {
	t.Helper()
	var resp model.SaveConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSaveThenFinalizeFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	first := doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi",
		AIText:    "Hello",
	})
	require.Equal(t, http.StatusOK, first.Code)
	firstResp := decodeSave(t, first)
	assert.Equal(t, "created", firstResp.Status)
	assert.False(t, firstResp.Finalized)
	assert.NotEmpty(t, firstResp.ID)
	assert.Empty(t, firstResp.Summary)

	second := doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi\nThanks, bye",
		AIText:    "Hello\nGoodbye",
		Finalize:  true,
		Confirmed: true,
	})
	require.Equal(t, http.StatusOK, second.Code)
	secondResp := decodeSave(t, second)
	assert.Equal(t, "updated", secondResp.Status)
	assert.Equal(t, firstResp.ID, secondResp.ID, "recency window reuses the record")
	assert.True(t, secondResp.Finalized)
	assert.Equal(t, "Short chat about pricing.", secondResp.Summary)
	require.NotNil(t, secondResp.SatisfactionRating)
	assert.Equal(t, 4, *secondResp.SatisfactionRating)
	assert.NotEmpty(t, secondResp.AnalysisTimestamp)
}

func TestSaveUnconfirmedFinalizeIsSkipped(t *testing.T) {
	router, st := newTestRouter(t)

	resp := decodeSave(t, doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi",
		AIText:    "Hello",
		Finalize:  true,
		Reason:    "continue",
	}))
	assert.False(t, resp.Finalized)
	assert.Empty(t, resp.Summary)

	rec, err := st.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.Analysis)
}

func TestSaveFinalizeOnEndReason(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := decodeSave(t, doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi",
		AIText:    "Hello",
		Finalize:  true,
		Reason:    "channel_closed",
	}))
	assert.True(t, resp.Finalized)
	assert.NotEmpty(t, resp.Summary)
}

func TestSaveRejectsBadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/conversations/save", bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		UserText: "Hi",
	})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestGetDetail(t *testing.T) {
	router, _ := newTestRouter(t)

	saved := decodeSave(t, doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi",
		AIText:    "Hello",
	}))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/conversations/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail model.ConversationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "User: Hi\nAI: Hello", detail.Conversation)
	assert.Equal(t, "sess-1", detail.SessionID)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, router, http.MethodGet, "/api/v1/conversations/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodGet, "/api/v1/conversations/0191e2c8-0000-7000-8000-000000000000", nil).Code)
}

func TestDeleteConversation(t *testing.T) {
	router, _ := newTestRouter(t)

	saved := decodeSave(t, doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi",
		AIText:    "Hello",
	}))

	assert.Equal(t, http.StatusNoContent, doJSON(t, router, http.MethodDelete, "/api/v1/conversations/"+saved.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodDelete, "/api/v1/conversations/"+saved.ID, nil).Code)
}

func TestListConversations(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "How much does the premium plan cost",
		AIText:    "It is twenty dollars a month",
	})
	doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-2",
		UserText:  "Hi",
		AIText:    "Hello",
	})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/conversations/?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		assert.NotEmpty(t, item.Title)
		assert.NotEmpty(t, item.Snippet)
	}

	filtered := doJSON(t, router, http.MethodGet, "/api/v1/conversations/?session_id=sess-2", nil)
	var filteredResp model.ListConversationsResponse
	require.NoError(t, json.Unmarshal(filtered.Body.Bytes(), &filteredResp))
	require.Len(t, filteredResp.Items, 1)
	assert.Equal(t, "sess-2", filteredResp.Items[0].SessionID)
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-1",
		UserText:  "Hi",
		AIText:    "Hello",
		Finalize:  true,
		Confirmed: true,
	})
	doJSON(t, router, http.MethodPost, "/api/v1/conversations/save", model.SaveConversationRequest{
		SessionID: "sess-2",
		UserText:  "Hi",
		AIText:    "Hello",
	})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/conversations/stats?hours=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 1, stats.Satisfied)
}
