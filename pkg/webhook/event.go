package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	plerrors "github.com/parleyhq/parley/pkg/errors"
)

// EventType discriminates inbound webhook events.
type EventType string

// Event kinds delivered by the platform. The platform may introduce new
// kinds at any time; unrecognized kinds must be acknowledged, not rejected.
const (
	EventSessionStarted     EventType = "call.session_started"
	EventParticipantLeft    EventType = "call.session_participant_left"
	EventSessionEnded       EventType = "call.session_ended"
	EventTranscriptionReady EventType = "call.transcription_ready"
	EventRecordingReady     EventType = "call.recording_ready"
	EventMessageNew         EventType = "message.new"
)

// Event is a decoded, recognized webhook event.
type Event interface {
	Kind() EventType
}

// SessionStartedEvent announces the first participant joining a call.
type SessionStartedEvent struct {
	MeetingID string
}

func (SessionStartedEvent) Kind() EventType { return EventSessionStarted }

// ParticipantLeftEvent announces a participant leaving a call.
type ParticipantLeftEvent struct {
	CallCID string
}

func (ParticipantLeftEvent) Kind() EventType { return EventParticipantLeft }

// SessionEndedEvent announces a call session ending.
type SessionEndedEvent struct {
	MeetingID string
}

func (SessionEndedEvent) Kind() EventType { return EventSessionEnded }

// TranscriptionReadyEvent announces a finished call transcription.
type TranscriptionReadyEvent struct {
	CallCID string
	URL     string
}

func (TranscriptionReadyEvent) Kind() EventType { return EventTranscriptionReady }

// RecordingReadyEvent announces a finished call recording.
type RecordingReadyEvent struct {
	CallCID string
	URL     string
}

func (RecordingReadyEvent) Kind() EventType { return EventRecordingReady }

// MessageNewEvent announces a chat message on a meeting channel.
type MessageNewEvent struct {
	UserID    string
	ChannelID string
	Text      string
}

func (MessageNewEvent) Kind() EventType { return EventMessageNew }

// wireEvent is the superset of fields across all event kinds.
type wireEvent struct {
	Type string `json:"type"`

	Call struct {
		Custom struct {
			MeetingID string `json:"meetingId"`
		} `json:"custom"`
	} `json:"call"`

	CallCID string `json:"call_cid"`

	CallTranscription struct {
		URL string `json:"url"`
	} `json:"call_transcription"`

	CallRecording struct {
		URL string `json:"url"`
	} `json:"call_recording"`

	User struct {
		ID string `json:"id"`
	} `json:"user"`

	ChannelID string `json:"channel_id"`

	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// DecodeEvent parses a verified body into a discriminated event. A body that
// is not valid JSON yields ErrMalformedPayload. A valid body with an absent
// or unrecognized type yields (nil, nil): the caller acknowledges it without
// acting.
func DecodeEvent(body []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%v: %w", err, plerrors.ErrMalformedPayload)
	}

	switch EventType(wire.Type) {
	case EventSessionStarted:
		return SessionStartedEvent{MeetingID: wire.Call.Custom.MeetingID}, nil
	case EventParticipantLeft:
		return ParticipantLeftEvent{CallCID: wire.CallCID}, nil
	case EventSessionEnded:
		return SessionEndedEvent{MeetingID: wire.Call.Custom.MeetingID}, nil
	case EventTranscriptionReady:
		return TranscriptionReadyEvent{CallCID: wire.CallCID, URL: wire.CallTranscription.URL}, nil
	case EventRecordingReady:
		return RecordingReadyEvent{CallCID: wire.CallCID, URL: wire.CallRecording.URL}, nil
	case EventMessageNew:
		return MessageNewEvent{
			UserID:    wire.User.ID,
			ChannelID: wire.ChannelID,
			Text:      wire.Message.Text,
		}, nil
	default:
		return nil, nil
	}
}

// SplitCallCID extracts the call type and meeting id from a composite call
// id of the form "<type>:<meetingId>". Either part may be empty when the cid
// is malformed.
func SplitCallCID(cid string) (callType, meetingID string) {
	parts := strings.SplitN(cid, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
