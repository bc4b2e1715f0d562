// Package jobs provides the background job queue for meeting post-processing.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job names. The webhook router enqueues by name; workers subscribe by name.
const (
	// JobSummarize is the transcript summarization job dispatched when a
	// transcription lands.
	JobSummarize = "meetings/processing"
)

// ErrMessageNotFound indicates the message data expired or was acked already.
var ErrMessageNotFound = errors.New("queue message not found")

// Message is the base interface for all queue messages.
type Message interface {
	// JobName returns the job this message triggers.
	JobName() string
}

// SummarizeMessage asks a worker to summarize a finished meeting's transcript.
type SummarizeMessage struct {
	MeetingID     string `json:"meetingId"`
	TranscriptURL string `json:"transcriptUrl"`
}

// JobName returns the summarization job name.
func (m *SummarizeMessage) JobName() string { return JobSummarize }

// QueuedMessage wraps a message with queue metadata.
type QueuedMessage struct {
	ID           string          `json:"id"`
	Job          string          `json:"job"`
	Message      json.RawMessage `json:"message"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"`
}

// ParseSummarize decodes the payload of a summarization message.
func (qm *QueuedMessage) ParseSummarize() (*SummarizeMessage, error) {
	if qm.Job != JobSummarize {
		return nil, fmt.Errorf("unexpected job %q", qm.Job)
	}
	var msg SummarizeMessage
	if err := json.Unmarshal(qm.Message, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode summarize message: %w", err)
	}
	return &msg, nil
}

// Enqueuer is the narrow producer-side view of a queue. The webhook router
// only ever enqueues; it never observes job outcomes.
type Enqueuer interface {
	// Enqueue adds a message to the queue.
	Enqueue(ctx context.Context, msg Message) error
}

// Queue is the full queue interface used by workers.
type Queue interface {
	Enqueuer

	// Name returns the queue name.
	Name() string

	// Dequeue retrieves the next message, blocking up to timeout. Returns
	// (nil, nil) when the queue stayed empty.
	Dequeue(ctx context.Context, timeout time.Duration) (*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(ctx context.Context, messageID string) error

	// Nack indicates processing failure; the message is retried with backoff
	// until MaxRetries, then dead-lettered.
	Nack(ctx context.Context, messageID string) error

	// Depth returns the current queue depth.
	Depth(ctx context.Context) (int64, error)
}
