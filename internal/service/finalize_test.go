package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-assist/voice-platform/internal/analysis"
	"github.com/live-assist/voice-platform/internal/model"
	"github.com/live-assist/voice-platform/internal/store"
	"github.com/live-assist/voice-platform/pkg/logger"
)

type fixedEngine struct {
	name   string
	result *analysis.Result
	err    error
	calls  int
}

func (e *fixedEngine) Name() string { return e.name }

func (e *fixedEngine) Analyze(_ context.Context, _ string) (*analysis.Result, *analysis.RawPayload, error) {
	e.calls++
	if e.err != nil {
		return nil, nil, e.err
	}
	res := *e.result
	return &res, &analysis.RawPayload{Engine: e.name}, nil
}

type queueFunc func(ctx context.Context, recordID string) error

func (f queueFunc) Enqueue(ctx context.Context, recordID string) error { return f(ctx, recordID) }

var defaultEndReasons = []string{"manual_stop", "channel_closed", "close", "end"}

func newFinalizeFixture(t *testing.T, queue FinalizeQueue, async bool) (*FinalizeOrchestrator, *store.MemoryStore, *fixedEngine) {
	t.Helper()
	st := store.NewMemoryStore()
	engine := &fixedEngine{
		name: "openai:responses:gpt-4o-mini",
		result: &analysis.Result{
			Summary:           "Customer asked about pricing and got an answer.",
			Satisfaction:      analysis.Satisfaction{Rating: 4, Label: "Satisfied"},
			UserBehavior:      "curious",
			ConversationTopic: "pricing",
			FeedbackSummary:   "none",
		},
	}
	chain := analysis.NewChain(logger.NewNop(), analysis.Tier{Engine: engine, Timeout: time.Second})
	orch := NewFinalizeOrchestrator(st, chain, queue, async, defaultEndReasons, logger.NewNop())
	return orch, st, engine
}

func seedRecord(t *testing.T, st *store.MemoryStore, transcript string) *model.ConversationRecord {
	t.Helper()
	rec, err := st.Create(context.Background(), &model.ConversationRecord{
		SessionKey: "sess-1",
		Transcript: transcript,
	})
	require.NoError(t, err)
	return rec
}

func TestShouldFinalize(t *testing.T) {
	orch, _, _ := newFinalizeFixture(t, nil, false)

	tests := []struct {
		name string
		req  model.SaveConversationRequest
		want bool
	}{
		{"not requested", model.SaveConversationRequest{Confirmed: true}, false},
		{"confirmed", model.SaveConversationRequest{Finalize: true, Confirmed: true}, true},
		{"end reason", model.SaveConversationRequest{Finalize: true, Reason: "manual_stop"}, true},
		{"reason normalized", model.SaveConversationRequest{Finalize: true, Reason: "  Manual Stop "}, true},
		{"unrecognized reason", model.SaveConversationRequest{Finalize: true, Reason: "continue"}, false},
		{"no confirmation at all", model.SaveConversationRequest{Finalize: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orch.ShouldFinalize(&tt.req))
		})
	}
}

func TestFinalizeSyncPersistsAnalysis(t *testing.T) {
	orch, st, _ := newFinalizeFixture(t, nil, false)
	rec := seedRecord(t, st, "User: Hi\nAI: Hello")

	done, err := orch.Finalize(context.Background(), rec.ID, &model.SaveConversationRequest{
		Finalize:  true,
		Confirmed: true,
	})
	require.NoError(t, err)
	assert.True(t, done)

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "Customer asked about pricing and got an answer.", got.Analysis.Summary)
	require.NotNil(t, got.Analysis.SatisfactionRating)
	assert.Equal(t, 4, *got.Analysis.SatisfactionRating)
	assert.Equal(t, "openai:responses:gpt-4o-mini", got.Analysis.Engine)
	assert.False(t, got.Analysis.AnalyzedAt.IsZero())

	var raw analysis.RawPayload
	require.NoError(t, json.Unmarshal(got.AnalysisRaw, &raw))
	assert.Equal(t, "openai:responses:gpt-4o-mini", raw.Engine)
}

func TestFinalizeSkippedLeavesAnalysisUntouched(t *testing.T) {
	orch, st, engine := newFinalizeFixture(t, nil, false)
	rec := seedRecord(t, st, "User: Hi\nAI: Hello")

	done, err := orch.Finalize(context.Background(), rec.ID, &model.SaveConversationRequest{
		Finalize: true,
		Reason:   "continue",
	})
	require.NoError(t, err)
	assert.False(t, done)
	assert.Zero(t, engine.calls)

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Analysis)
}

func TestFinalizeAsyncEnqueues(t *testing.T) {
	var enqueued []string
	queue := queueFunc(func(_ context.Context, recordID string) error {
		enqueued = append(enqueued, recordID)
		return nil
	})
	orch, st, engine := newFinalizeFixture(t, queue, true)
	rec := seedRecord(t, st, "User: Hi\nAI: Hello")

	done, err := orch.Finalize(context.Background(), rec.ID, &model.SaveConversationRequest{
		Finalize:  true,
		Confirmed: true,
	})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []string{rec.ID}, enqueued)
	assert.Zero(t, engine.calls, "analysis runs on the worker, not inline")

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Analysis)
}

func TestFinalizeEnqueueFailureFallsBackToSync(t *testing.T) {
	queue := queueFunc(func(_ context.Context, _ string) error {
		return errors.New("nats: connection closed")
	})
	orch, st, engine := newFinalizeFixture(t, queue, true)
	rec := seedRecord(t, st, "User: Hi\nAI: Hello")

	done, err := orch.Finalize(context.Background(), rec.ID, &model.SaveConversationRequest{
		Finalize: true,
		Reason:   "channel_closed",
	})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, engine.calls)

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.NotEmpty(t, got.Analysis.Summary)
}

func TestFinalizeRecordDegradesToLocalOnEngineFailure(t *testing.T) {
	st := store.NewMemoryStore()
	engine := &fixedEngine{name: "openai:responses:gpt-4o-mini", err: errors.New("rate limited")}
	chain := analysis.NewChain(logger.NewNop(), analysis.Tier{Engine: engine, Timeout: time.Second})
	orch := NewFinalizeOrchestrator(st, chain, nil, false, defaultEndReasons, logger.NewNop())
	rec := seedRecord(t, st, "User: Hi\nAI: Hello")

	require.NoError(t, orch.FinalizeRecord(context.Background(), rec.ID))

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, analysis.LocalEngineName, got.Analysis.Engine)
	require.NotNil(t, got.Analysis.SatisfactionRating)
	assert.Equal(t, 3, *got.Analysis.SatisfactionRating)

	var raw analysis.RawPayload
	require.NoError(t, json.Unmarshal(got.AnalysisRaw, &raw))
	assert.Contains(t, raw.Errors["openai:responses:gpt-4o-mini"], "rate limited")
}

type ctxAwareEngine struct {
	inner *fixedEngine
}

func (e *ctxAwareEngine) Name() string { return e.inner.Name() }

func (e *ctxAwareEngine) Analyze(ctx context.Context, transcript string) (*analysis.Result, *analysis.RawPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return e.inner.Analyze(ctx, transcript)
}

func TestFinalizeSurvivesCallerDisconnect(t *testing.T) {
	st := store.NewMemoryStore()
	engine := &ctxAwareEngine{inner: &fixedEngine{
		name: "openai:responses:gpt-4o-mini",
		result: &analysis.Result{
			Summary:      "Customer asked about pricing and got an answer.",
			Satisfaction: analysis.Satisfaction{Rating: 4, Label: "Satisfied"},
		},
	}}
	chain := analysis.NewChain(logger.NewNop(), analysis.Tier{Engine: engine, Timeout: time.Second})
	orch := NewFinalizeOrchestrator(st, chain, nil, false, defaultEndReasons, logger.NewNop())
	rec := seedRecord(t, st, "User: Hi\nAI: Hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := orch.Finalize(ctx, rec.ID, &model.SaveConversationRequest{
		Finalize:  true,
		Confirmed: true,
	})
	require.NoError(t, err)
	assert.True(t, done)

	got, err := st.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "openai:responses:gpt-4o-mini", got.Analysis.Engine,
		"a canceled caller context must not push analysis down to the local tier")
	assert.Equal(t, "Customer asked about pricing and got an answer.", got.Analysis.Summary)
}

func TestFinalizeRecordMissingRecord(t *testing.T) {
	orch, _, _ := newFinalizeFixture(t, nil, false)

	err := orch.FinalizeRecord(context.Background(), "0191e2c8-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
