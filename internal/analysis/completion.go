package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/live-assist/voice-platform/internal/llm"
)

const completionSystemPrompt = "You produce strictly formatted JSON responses matching the required keys. No extra text."

const completionUserPrompt = `Given the transcript, produce a compact JSON object with keys:
- summary (string)
- satisfaction_level: { rating (1..5 integer), label (string) }
- user_behavior (string)
- conversation_topic (string)
- feedback_summary (string)
- timestamp (ISO 8601 UTC string)
Return ONLY JSON without code fences or commentary.

Transcript:
`

// CompletionEngine is the secondary analysis tier: a general completion call
// instructed to emit strict JSON, parsed leniently.
type CompletionEngine struct {
	client llm.Client
	model  string
}

// NewCompletionEngine creates the secondary tier over any completion provider.
func NewCompletionEngine(client llm.Client, model string) *CompletionEngine {
	return &CompletionEngine{client: client, model: model}
}

// Name returns the engine identity stamped into results.
func (e *CompletionEngine) Name() string {
	return fmt.Sprintf("%s:chat:%s", e.client.Name(), e.model)
}

// Analyze runs the completion and parses its output: first as whole-body
// JSON, then by extracting the outermost {...} substring.
func (e *CompletionEngine) Analyze(ctx context.Context, transcript string) (*Result, *RawPayload, error) {
	resp, err := e.client.Complete(ctx, &llm.CompletionRequest{
		Model: e.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: completionSystemPrompt},
			{Role: "user", Content: completionUserPrompt + transcript},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("completion failed: %w", err)
	}
	if resp.Content == "" {
		return nil, nil, errors.New("completion returned no output text")
	}

	jsonText, err := extractJSON(resp.Content)
	if err != nil {
		return nil, nil, err
	}

	var result Result
	if err := json.Unmarshal([]byte(jsonText), &result); err != nil {
		return nil, nil, fmt.Errorf("failed to decode completion output: %w", err)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		body = nil
	}

	raw := &RawPayload{
		Engine: e.Name(),
		Body:   body,
	}
	return &result, raw, nil
}

// extractJSON returns the input when it already looks like a JSON object,
// otherwise the outermost {...} substring.
func extractJSON(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return "", errors.New("no JSON object found in completion output")
	}
	return trimmed[start : end+1], nil
}
