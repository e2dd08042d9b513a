package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-assist/voice-platform/internal/llm"
)

type stubCompletionClient struct {
	content string
	err     error
}

func (s *stubCompletionClient) Complete(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content, Model: "stub-model"}, nil
}

func (s *stubCompletionClient) Name() string { return "stub" }

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare object", in: `{"a":1}`, want: `{"a":1}`},
		{name: "leading whitespace", in: "  \n{\"a\":1}", want: `{"a":1}`},
		{name: "code fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding prose", in: "Here you go: {\"a\":1} hope that helps", want: `{"a":1}`},
		{name: "no object", in: "sorry, I cannot help", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompletionEngineParsesStrictJSON(t *testing.T) {
	client := &stubCompletionClient{content: `{
		"summary": "pricing discussion",
		"satisfaction_level": {"rating": 5, "label": "Excellent Service"},
		"user_behavior": "focused",
		"conversation_topic": "pricing",
		"feedback_summary": "clear answers",
		"timestamp": "2026-08-29T09:00:00Z"
	}`}
	engine := NewCompletionEngine(client, "gpt-4o-mini")

	result, raw, err := engine.Analyze(context.Background(), "User: hi")

	require.NoError(t, err)
	assert.Equal(t, "pricing discussion", result.Summary)
	assert.Equal(t, 5, result.Satisfaction.Rating)
	assert.Equal(t, "stub:chat:gpt-4o-mini", engine.Name())
	assert.NotEmpty(t, raw.Body)
}

func TestCompletionEngineExtractsWrappedJSON(t *testing.T) {
	client := &stubCompletionClient{content: "Sure! ```json\n{\"summary\":\"s\",\"satisfaction_level\":{\"rating\":2,\"label\":\"Poor\"},\"user_behavior\":\"\",\"conversation_topic\":\"\",\"feedback_summary\":\"\",\"timestamp\":\"2026-08-29T09:00:00Z\"}\n```"}
	engine := NewCompletionEngine(client, "gpt-4o-mini")

	result, _, err := engine.Analyze(context.Background(), "User: hi")

	require.NoError(t, err)
	assert.Equal(t, 2, result.Satisfaction.Rating)
}

func TestCompletionEngineRejectsNonJSON(t *testing.T) {
	engine := NewCompletionEngine(&stubCompletionClient{content: "I am unable to produce JSON today."}, "gpt-4o-mini")

	_, _, err := engine.Analyze(context.Background(), "User: hi")
	assert.Error(t, err)
}
