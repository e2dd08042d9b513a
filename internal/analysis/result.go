// Package analysis produces structured post-conversation analysis through a
// tiered engine chain that degrades quality before ever failing.
package analysis

import (
	"encoding/json"
	"time"
)

// Satisfaction is the structured satisfaction portion of an analysis.
type Satisfaction struct {
	Rating int    `json:"rating"`
	Label  string `json:"label"`
}

// Result is the structured analysis produced by exactly one engine attempt.
// The key set is fixed; unknown-shape upstream payloads are rejected to the
// next tier rather than propagated as loose maps.
type Result struct {
	Summary           string       `json:"summary"`
	Satisfaction      Satisfaction `json:"satisfaction_level"`
	UserBehavior      string       `json:"user_behavior"`
	ConversationTopic string       `json:"conversation_topic"`
	FeedbackSummary   string       `json:"feedback_summary"`
	Timestamp         string       `json:"timestamp"`
	Engine            string       `json:"analysis_engine,omitempty"`
}

// RawPayload is the audit record of an analysis attempt. It is always
// non-nil when the chain returns, and carries the error detail of every
// earlier tier that was attempted and failed.
type RawPayload struct {
	Engine        string            `json:"engine"`
	Body          json.RawMessage   `json:"body,omitempty"`
	Note          string            `json:"note,omitempty"`
	TranscriptLen int               `json:"transcript_len,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// normalizeTimestamp substitutes the current UTC time when the engine
// omitted the timestamp or returned one that does not parse.
func normalizeTimestamp(r *Result, now func() time.Time) {
	if r.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			return
		}
	}
	r.Timestamp = now().UTC().Format(time.RFC3339)
}
