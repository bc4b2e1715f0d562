package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plerrors "github.com/parleyhq/parley/pkg/errors"
)

func TestDecodeEvent_SessionStarted(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{
		"type": "call.session_started",
		"call": {"custom": {"meetingId": "m1"}}
	}`))
	require.NoError(t, err)

	started, ok := evt.(SessionStartedEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", started.MeetingID)
}

func TestDecodeEvent_SessionEnded(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{
		"type": "call.session_ended",
		"call": {"custom": {"meetingId": "m1"}}
	}`))
	require.NoError(t, err)

	ended, ok := evt.(SessionEndedEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", ended.MeetingID)
}

func TestDecodeEvent_TranscriptionReady(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{
		"type": "call.transcription_ready",
		"call_cid": "default:m1",
		"call_transcription": {"url": "https://cdn/t.jsonl"}
	}`))
	require.NoError(t, err)

	tr, ok := evt.(TranscriptionReadyEvent)
	require.True(t, ok)
	assert.Equal(t, "default:m1", tr.CallCID)
	assert.Equal(t, "https://cdn/t.jsonl", tr.URL)
}

func TestDecodeEvent_RecordingReady(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{
		"type": "call.recording_ready",
		"call_cid": "default:m1",
		"call_recording": {"url": "https://cdn/r.mp4"}
	}`))
	require.NoError(t, err)

	rec, ok := evt.(RecordingReadyEvent)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/r.mp4", rec.URL)
}

func TestDecodeEvent_MessageNew(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{
		"type": "message.new",
		"user": {"id": "u1"},
		"channel_id": "m1",
		"message": {"text": "what did we decide?"}
	}`))
	require.NoError(t, err)

	msg, ok := evt.(MessageNewEvent)
	require.True(t, ok)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "m1", msg.ChannelID)
	assert.Equal(t, "what did we decide?", msg.Text)
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"type": "call.reaction_new"}`))
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestDecodeEvent_MissingType(t *testing.T) {
	evt, err := DecodeEvent([]byte(`{"call_cid": "default:m1"}`))
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := DecodeEvent([]byte(`{not json`))
	assert.True(t, plerrors.IsMalformedPayload(err))
}

func TestSplitCallCID(t *testing.T) {
	callType, meetingID := SplitCallCID("default:m1")
	assert.Equal(t, "default", callType)
	assert.Equal(t, "m1", meetingID)

	// Only the first colon separates type from id.
	_, meetingID = SplitCallCID("default:m:1")
	assert.Equal(t, "m:1", meetingID)

	callType, meetingID = SplitCallCID("no-separator")
	assert.Empty(t, callType)
	assert.Empty(t, meetingID)

	_, meetingID = SplitCallCID("default:")
	assert.Empty(t, meetingID)
}
