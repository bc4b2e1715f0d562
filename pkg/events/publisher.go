// Package events provides meeting lifecycle event publishing over Redis
// pub/sub so user-facing surfaces can react to webhook-driven transitions
// without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/store"
)

// Redis channels for meeting lifecycle events.
const (
	ChannelMeetingStatusChanged   = "events.meeting.status_changed"
	ChannelMeetingTranscriptReady = "events.meeting.transcript_ready"
	ChannelMeetingCompleted       = "events.meeting.completed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "parley",
		Version:   "1.0",
	}
}

// MeetingStatusChangedEvent is published when a meeting transitions state.
type MeetingStatusChangedEvent struct {
	BaseEvent

	MeetingID string              `json:"meeting_id"`
	Status    store.MeetingStatus `json:"status"`
}

// TranscriptReadyEvent is published when a transcript URL lands.
type TranscriptReadyEvent struct {
	BaseEvent

	MeetingID     string `json:"meeting_id"`
	TranscriptURL string `json:"transcript_url"`
}

// MeetingCompletedEvent is published when the summarizer finishes a meeting.
type MeetingCompletedEvent struct {
	BaseEvent

	MeetingID string `json:"meeting_id"`
}

// Publisher publishes meeting lifecycle events to Redis. A nil *Publisher is
// a valid no-op publisher so callers do not need nil checks.
type Publisher struct {
	client *redis.Client
	logger logging.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger logging.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// StatusChanged publishes a status transition. Publish failures are logged
// and swallowed: lifecycle events are advisory, never part of the webhook's
// correctness contract.
func (p *Publisher) StatusChanged(ctx context.Context, meetingID string, status store.MeetingStatus) {
	if p == nil {
		return
	}
	p.publish(ctx, ChannelMeetingStatusChanged, MeetingStatusChangedEvent{
		BaseEvent: NewBaseEvent("meeting.status_changed"),
		MeetingID: meetingID,
		Status:    status,
	})
}

// TranscriptReady publishes a transcript arrival.
func (p *Publisher) TranscriptReady(ctx context.Context, meetingID, transcriptURL string) {
	if p == nil {
		return
	}
	p.publish(ctx, ChannelMeetingTranscriptReady, TranscriptReadyEvent{
		BaseEvent:     NewBaseEvent("meeting.transcript_ready"),
		MeetingID:     meetingID,
		TranscriptURL: transcriptURL,
	})
}

// Completed publishes a summarization finish.
func (p *Publisher) Completed(ctx context.Context, meetingID string) {
	if p == nil {
		return
	}
	p.publish(ctx, ChannelMeetingCompleted, MeetingCompletedEvent{
		BaseEvent: NewBaseEvent("meeting.completed"),
		MeetingID: meetingID,
	})
}

func (p *Publisher) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", logging.Err(err), logging.F("channel", channel))
		return
	}

	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		p.logger.Warn("Failed to publish event",
			logging.Err(fmt.Errorf("publish %s: %w", channel, err)))
	}
}
