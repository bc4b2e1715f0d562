package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeMessage_RoundTrip(t *testing.T) {
	msg := &SummarizeMessage{MeetingID: "m1", TranscriptURL: "https://x/y.jsonl"}
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	// Wire field names match the job contract consumed by other services.
	assert.JSONEq(t, `{"meetingId":"m1","transcriptUrl":"https://x/y.jsonl"}`, string(payload))

	qm := &QueuedMessage{ID: "1", Job: JobSummarize, Message: payload}
	parsed, err := qm.ParseSummarize()
	require.NoError(t, err)
	assert.Equal(t, "m1", parsed.MeetingID)
	assert.Equal(t, "https://x/y.jsonl", parsed.TranscriptURL)
}

func TestParseSummarize_WrongJob(t *testing.T) {
	qm := &QueuedMessage{ID: "1", Job: "meetings/other", Message: []byte(`{}`)}
	_, err := qm.ParseSummarize()
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, backoff(1))
	assert.Equal(t, 60*time.Second, backoff(2))
	assert.Equal(t, 120*time.Second, backoff(3))
	// Capped.
	assert.Equal(t, 10*time.Minute, backoff(12))
	assert.Equal(t, 30*time.Second, backoff(0))
}

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.Equal(t, "meetings:summarize", cfg.Name)
	assert.Greater(t, cfg.MaxRetries, 0)
	assert.Greater(t, cfg.VisibilityTimeout, time.Duration(0))
}
