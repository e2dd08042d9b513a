package analysis

import (
	"context"
	"time"
)

const (
	// LocalEngineName tags results produced without any upstream call.
	LocalEngineName = "local"

	// previewLimit bounds the transcript preview used as a degraded summary.
	previewLimit = 200
)

// LocalEngine is the terminal analysis tier: deterministic, network-free,
// and incapable of failing. It guarantees the chain always returns a result.
type LocalEngine struct {
	now func() time.Time
}

// NewLocalEngine creates the terminal fallback engine.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{now: time.Now}
}

// Name returns the engine identity stamped into results.
func (e *LocalEngine) Name() string {
	return LocalEngineName
}

// Analyze produces a truncated-preview summary with neutral satisfaction.
// The returned error is always nil.
func (e *LocalEngine) Analyze(_ context.Context, transcript string) (*Result, *RawPayload, error) {
	summary := transcript
	if runes := []rune(summary); len(runes) > previewLimit {
		summary = string(runes[:previewLimit]) + "..."
	}

	result := &Result{
		Summary:      summary,
		Satisfaction: Satisfaction{Rating: 3, Label: "Neutral"},
		Timestamp:    e.now().UTC().Format(time.RFC3339),
		Engine:       LocalEngineName,
	}
	raw := &RawPayload{
		Engine:        LocalEngineName,
		Note:          "upstream analysis unavailable or returned an error; using local fallback",
		TranscriptLen: len(transcript),
	}
	return result, raw, nil
}
