package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-assist/voice-platform/internal/store"
)

func TestJobCodec(t *testing.T) {
	in := Job{
		RecordID:   "0191e2c8-0000-7000-8000-000000000000",
		EnqueuedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := encodeJob(in)
	require.NoError(t, err)

	out, err := decodeJob(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeJobRejectsBadPayloads(t *testing.T) {
	_, err := decodeJob([]byte("not json"))
	assert.Error(t, err)

	_, err = decodeJob([]byte(`{"enqueued_at":"2026-03-01T12:00:00Z"}`))
	assert.Error(t, err, "a job without a record id is undeliverable")
}

func TestPermanent(t *testing.T) {
	assert.True(t, permanent(store.ErrNotFound))
	assert.True(t, permanent(fmt.Errorf("failed to load record for analysis: %w", store.ErrNotFound)))
	assert.False(t, permanent(errors.New("connection reset")))
	assert.False(t, permanent(nil))
}

func TestRetrySchedule(t *testing.T) {
	schedule := retrySchedule(3)
	require.Len(t, schedule, 3)
	assert.Equal(t, 2*time.Second, schedule[0])
	for i := 1; i < len(schedule); i++ {
		assert.Greater(t, schedule[i], schedule[i-1])
	}

	assert.Nil(t, retrySchedule(0))
}
