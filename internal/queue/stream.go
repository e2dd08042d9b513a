package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the finalize jobs stream.
	StreamName = "FINALIZE"

	// SubjectFinalize carries one job per confirmed finalize request.
	SubjectFinalize = "finalize.conversation"
)

// Job is the wire payload of one finalize unit of work. The record id is
// the whole job; the worker re-reads everything else from the store so a
// delayed delivery still analyzes the freshest transcript.
type Job struct {
	RecordID   string    `json:"record_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func decodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to decode finalize job: %w", err)
	}
	if job.RecordID == "" {
		return Job{}, fmt.Errorf("finalize job has no record id")
	}
	return job, nil
}

// StreamManager handles the finalize stream and job publication.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a stream manager over an established client.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the finalize stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectFinalize},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Pending conversation finalization jobs",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Enqueue publishes a finalize job for the record. The error surfaces to
// the caller so it can fall back to synchronous analysis.
func (m *StreamManager) Enqueue(ctx context.Context, recordID string) error {
	data, err := encodeJob(Job{RecordID: recordID, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal finalize job: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, SubjectFinalize, data); err != nil {
		return fmt.Errorf("failed to publish finalize job: %w", err)
	}
	return nil
}
