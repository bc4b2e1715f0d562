// Package store provides persistence for meetings and agents.
//
// All status transitions are expressed as single conditional UPDATEs
// (compare-and-set on status) so that duplicate or out-of-order webhook
// deliveries are absorbed at the database level without locking.
package store

import (
	"context"
	"time"
)

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	StatusUpcoming   MeetingStatus = "upcoming"
	StatusActive     MeetingStatus = "active"
	StatusProcessing MeetingStatus = "processing"
	StatusCompleted  MeetingStatus = "completed"
	StatusCancelled  MeetingStatus = "cancelled"
)

// Valid reports whether s is a known meeting status.
func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusActive, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s MeetingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Meeting is a scheduled meeting with an AI agent participant.
type Meeting struct {
	ID            string
	Name          string
	UserID        string
	AgentID       string
	Status        MeetingStatus
	StartedAt     *time.Time
	EndedAt       *time.Time
	TranscriptURL *string
	RecordingURL  *string
	Summary       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Agent is a user-owned AI participant definition. The router treats agents
// as read-only.
type Agent struct {
	ID          string
	UserID      string
	Name        string
	Instruction string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the persistence interface consumed by the webhook router and the
// summarization worker.
type Store interface {
	// GetMeeting returns a meeting by id, ErrNotFound if absent.
	GetMeeting(ctx context.Context, id string) (*Meeting, error)

	// GetAgent returns an agent by id, ErrNotFound if absent.
	GetAgent(ctx context.Context, id string) (*Agent, error)

	// StartMeeting atomically transitions an upcoming meeting to active and
	// stamps started_at. Returns ErrNotFound when the meeting does not exist
	// or is not upcoming; the caller cannot tell the two apart, which is the
	// behavior the webhook sender expects for duplicate session_started
	// deliveries.
	StartMeeting(ctx context.Context, id string, now time.Time) (*Meeting, error)

	// FinishMeeting atomically transitions an active meeting to processing
	// and stamps ended_at. Returns false when no row matched (the meeting was
	// not active); that is not an error, it is a duplicate delivery.
	FinishMeeting(ctx context.Context, id string, now time.Time) (bool, error)

	// SetTranscriptURL persists the transcript location. Returns the updated
	// meeting, ErrNotFound when the meeting does not exist.
	SetTranscriptURL(ctx context.Context, id, url string) (*Meeting, error)

	// SetRecordingURL persists the recording location. Last write wins, no
	// status guard and no existence check: recordings can land at any point
	// of the meeting lifecycle.
	SetRecordingURL(ctx context.Context, id, url string) error

	// GetCompletedMeeting returns the meeting only when it is completed,
	// ErrNotFound otherwise.
	GetCompletedMeeting(ctx context.Context, id string) (*Meeting, error)

	// CompleteMeeting atomically transitions a processing meeting to
	// completed and stores the generated summary. Returns false when no row
	// matched (already completed or not yet processing).
	CompleteMeeting(ctx context.Context, id, summary string) (bool, error)
}
