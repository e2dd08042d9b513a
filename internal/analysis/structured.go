package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const structuredSystemPrompt = "You are a post-conversation analysis agent. " +
	"Given the full chat transcript between the user and the assistant, " +
	"produce ONLY a JSON object conforming to the provided JSON schema. " +
	"Do not add extra commentary."

// analysisSchema is the strict output schema enforced on the primary tier.
var analysisSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "A concise and clear summary of the entire conversation."},
    "satisfaction_level": {
      "type": "object",
      "description": "A structured satisfaction analysis based on tone, engagement, and sentiment.",
      "properties": {
        "rating": {"type": "integer", "enum": [1, 2, 3, 4, 5], "description": "1=Very Poor, 5=Excellent"},
        "label": {"type": "string", "description": "Text label e.g., 'Excellent Service'"}
      },
      "required": ["rating", "label"],
      "additionalProperties": false
    },
    "user_behavior": {"type": "string", "description": "Tone/behavior: curiosity, frustration, focus, etc."},
    "conversation_topic": {"type": "string", "description": "Main topic/category of the conversation."},
    "feedback_summary": {"type": "string", "description": "Reasoning behind the satisfaction level and sentiment."},
    "timestamp": {"type": "string", "description": "ISO 8601 UTC timestamp when the summary was generated."}
  },
  "required": ["summary", "satisfaction_level", "user_behavior", "conversation_topic", "feedback_summary", "timestamp"],
  "additionalProperties": false
}`)

// StructuredEngine is the primary analysis tier: a structured-output chat
// completion with a strict JSON schema.
type StructuredEngine struct {
	client *openai.Client
	model  string
}

// NewStructuredEngine creates the schema-enforced OpenAI engine.
func NewStructuredEngine(apiKey, model string) (*StructuredEngine, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &StructuredEngine{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Name returns the engine identity stamped into results.
func (e *StructuredEngine) Name() string {
	return "openai:responses:" + e.model
}

// Analyze runs the structured-output completion. Any transport error, empty
// output, or decode failure surfaces as an error so the chain can fall
// through to the next tier.
func (e *StructuredEngine) Analyze(ctx context.Context, transcript string) (*Result, *RawPayload, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: structuredSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Transcript:\n" + transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "summarize_conversation",
				Schema: analysisSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("structured completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, nil, errors.New("structured completion returned no output text")
	}
	content := resp.Choices[0].Message.Content

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, nil, fmt.Errorf("failed to decode structured output: %w", err)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		body = json.RawMessage(content)
	}

	raw := &RawPayload{
		Engine: e.Name(),
		Body:   body,
	}
	return &result, raw, nil
}
