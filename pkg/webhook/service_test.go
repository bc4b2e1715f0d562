package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/ai"
	plerrors "github.com/parleyhq/parley/pkg/errors"
	"github.com/parleyhq/parley/pkg/jobs"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/rtc"
	"github.com/parleyhq/parley/pkg/store"
)

// routerStore implements store.Store with in-memory maps and the same
// conditional-update semantics as the Postgres implementation.
type routerStore struct {
	meetings map[string]*store.Meeting
	agents   map[string]*store.Agent

	recordings map[string]string
}

func newRouterStore() *routerStore {
	return &routerStore{
		meetings:   map[string]*store.Meeting{},
		agents:     map[string]*store.Agent{},
		recordings: map[string]string{},
	}
}

func (s *routerStore) GetMeeting(ctx context.Context, id string) (*store.Meeting, error) {
	m, ok := s.meetings[id]
	if !ok {
		return nil, plerrors.ErrNotFound
	}
	return m, nil
}

func (s *routerStore) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, plerrors.ErrNotFound
	}
	return a, nil
}

func (s *routerStore) StartMeeting(ctx context.Context, id string, now time.Time) (*store.Meeting, error) {
	m, ok := s.meetings[id]
	if !ok || m.Status != store.StatusUpcoming {
		return nil, plerrors.ErrNotFound
	}
	m.Status = store.StatusActive
	m.StartedAt = &now
	return m, nil
}

func (s *routerStore) FinishMeeting(ctx context.Context, id string, now time.Time) (bool, error) {
	m, ok := s.meetings[id]
	if !ok || m.Status != store.StatusActive {
		return false, nil
	}
	m.Status = store.StatusProcessing
	m.EndedAt = &now
	return true, nil
}

func (s *routerStore) SetTranscriptURL(ctx context.Context, id, url string) (*store.Meeting, error) {
	m, ok := s.meetings[id]
	if !ok {
		return nil, plerrors.ErrNotFound
	}
	m.TranscriptURL = &url
	return m, nil
}

func (s *routerStore) SetRecordingURL(ctx context.Context, id, url string) error {
	if m, ok := s.meetings[id]; ok {
		m.RecordingURL = &url
	}
	s.recordings[id] = url
	return nil
}

func (s *routerStore) GetCompletedMeeting(ctx context.Context, id string) (*store.Meeting, error) {
	m, ok := s.meetings[id]
	if !ok || m.Status != store.StatusCompleted {
		return nil, plerrors.ErrNotFound
	}
	return m, nil
}

func (s *routerStore) CompleteMeeting(ctx context.Context, id, summary string) (bool, error) {
	m, ok := s.meetings[id]
	if !ok || m.Status != store.StatusProcessing {
		return false, nil
	}
	m.Status = store.StatusCompleted
	m.Summary = &summary
	return true, nil
}

// fakeCalls records call-control invocations.
type fakeCalls struct {
	connected []string
	updated   []string
	ended     []string
	err       error
}

func (c *fakeCalls) ConnectAgent(ctx context.Context, callID, agentID, instructions string) error {
	if c.err != nil {
		return c.err
	}
	c.connected = append(c.connected, callID+"/"+agentID)
	return nil
}

func (c *fakeCalls) UpdateAgentInstructions(ctx context.Context, callID, instructions string) error {
	if c.err != nil {
		return c.err
	}
	c.updated = append(c.updated, callID+"/"+instructions)
	return nil
}

func (c *fakeCalls) EndCall(ctx context.Context, callType, callID string) error {
	if c.err != nil {
		return c.err
	}
	c.ended = append(c.ended, callType+":"+callID)
	return nil
}

// fakeChat records chat invocations and serves canned history.
type fakeChat struct {
	history  []rtc.Message
	upserted []rtc.ChatUser
	sent     []string
}

func (c *fakeChat) RecentMessages(ctx context.Context, channelID string, limit int) ([]rtc.Message, error) {
	return c.history, nil
}

func (c *fakeChat) UpsertUser(ctx context.Context, user rtc.ChatUser) error {
	c.upserted = append(c.upserted, user)
	return nil
}

func (c *fakeChat) SendMessage(ctx context.Context, channelID string, user rtc.ChatUser, text string) error {
	c.sent = append(c.sent, text)
	return nil
}

// fakeAI implements ai.Provider.
type fakeAI struct {
	lastReq ai.CompletionRequest
	resp    string
	err     error
	calls   int
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.CompletionResponse{Content: f.resp}, nil
}

// fakeQueue records enqueued job messages.
type fakeQueue struct {
	enqueued []jobs.Message
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg jobs.Message) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, msg)
	return nil
}

type fixture struct {
	store *routerStore
	calls *fakeCalls
	chat  *fakeChat
	ai    *fakeAI
	queue *fakeQueue
	svc   *Service
}

func newFixture() *fixture {
	f := &fixture{
		store: newRouterStore(),
		calls: &fakeCalls{},
		chat:  &fakeChat{},
		ai:    &fakeAI{resp: "a reply"},
		queue: &fakeQueue{},
	}
	f.svc = NewService(DefaultConfig(), Deps{
		Store:    f.store,
		Calls:    f.calls,
		Chat:     f.chat,
		Provider: f.ai,
		Queue:    f.queue,
		Logger:   logging.NewNopLogger(),
	})
	return f
}

func strptr(s string) *string { return &s }

func TestSessionStarted_ActivatesAndConnectsAgent(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusUpcoming}
	f.store.agents["a1"] = &store.Agent{ID: "a1", Name: "Tutor", Instruction: "teach"}

	err := f.svc.Process(context.Background(), SessionStartedEvent{MeetingID: "m1"})
	require.NoError(t, err)

	assert.Equal(t, store.StatusActive, f.store.meetings["m1"].Status)
	assert.NotNil(t, f.store.meetings["m1"].StartedAt)
	assert.Equal(t, []string{"m1/a1"}, f.calls.connected)
	assert.Equal(t, []string{"m1/teach"}, f.calls.updated)
}

func TestSessionStarted_DuplicateDeliveryRejected(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusActive}
	f.store.agents["a1"] = &store.Agent{ID: "a1"}

	err := f.svc.Process(context.Background(), SessionStartedEvent{MeetingID: "m1"})
	assert.True(t, plerrors.IsValidation(err))
	assert.Empty(t, f.calls.connected, "duplicate start must not reconnect the agent")
}

func TestSessionStarted_MissingMeetingID(t *testing.T) {
	f := newFixture()
	err := f.svc.Process(context.Background(), SessionStartedEvent{})
	assert.True(t, plerrors.IsValidation(err))
}

func TestSessionStarted_AgentMissing(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "gone", Status: store.StatusUpcoming}

	err := f.svc.Process(context.Background(), SessionStartedEvent{MeetingID: "m1"})
	assert.True(t, plerrors.IsValidation(err), "dangling agent is a payload problem, not a missing resource")
	assert.False(t, plerrors.IsNotFound(err))
	assert.Empty(t, f.calls.connected)
}

func TestParticipantLeft_EndsCall(t *testing.T) {
	f := newFixture()
	err := f.svc.Process(context.Background(), ParticipantLeftEvent{CallCID: "default:m1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"default:m1"}, f.calls.ended)
}

func TestParticipantLeft_MalformedCID(t *testing.T) {
	f := newFixture()
	err := f.svc.Process(context.Background(), ParticipantLeftEvent{CallCID: "garbage"})
	assert.True(t, plerrors.IsValidation(err))
	assert.Empty(t, f.calls.ended)
}

func TestSessionEnded_TransitionsActiveMeeting(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", Status: store.StatusActive}

	err := f.svc.Process(context.Background(), SessionEndedEvent{MeetingID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, f.store.meetings["m1"].Status)
	assert.NotNil(t, f.store.meetings["m1"].EndedAt)
}

func TestSessionEnded_NonActiveIsNoop(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", Status: store.StatusProcessing}

	err := f.svc.Process(context.Background(), SessionEndedEvent{MeetingID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, f.store.meetings["m1"].Status)
}

func TestTranscriptionReady_EnqueuesOneJob(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", Status: store.StatusProcessing}

	err := f.svc.Process(context.Background(), TranscriptionReadyEvent{
		CallCID: "default:m1",
		URL:     "https://cdn/t.jsonl",
	})
	require.NoError(t, err)

	require.Len(t, f.queue.enqueued, 1)
	msg, ok := f.queue.enqueued[0].(*jobs.SummarizeMessage)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.MeetingID)
	assert.Equal(t, "https://cdn/t.jsonl", msg.TranscriptURL)

	require.NotNil(t, f.store.meetings["m1"].TranscriptURL)
	assert.Equal(t, "https://cdn/t.jsonl", *f.store.meetings["m1"].TranscriptURL)
}

func TestTranscriptionReady_MeetingMissing(t *testing.T) {
	f := newFixture()
	err := f.svc.Process(context.Background(), TranscriptionReadyEvent{CallCID: "default:gone", URL: "u"})
	assert.True(t, plerrors.IsNotFound(err))
	assert.Empty(t, f.queue.enqueued)
}

func TestRecordingReady_WritesUnconditionally(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", Status: store.StatusCompleted}

	err := f.svc.Process(context.Background(), RecordingReadyEvent{
		CallCID: "default:m1",
		URL:     "https://cdn/r.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/r.mp4", f.store.recordings["m1"])
}

func TestMessageNew_RepliesAsAgent(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{
		ID:      "m1",
		AgentID: "a1",
		Status:  store.StatusCompleted,
		Summary: strptr("We planned the launch."),
	}
	f.store.agents["a1"] = &store.Agent{ID: "a1", Name: "Planner", Instruction: "be organized"}
	f.chat.history = []rtc.Message{
		{Text: "hello", UserID: "u1"},
		{Text: "", UserID: "u1"},
		{Text: "hi there", UserID: "a1"},
	}

	err := f.svc.Process(context.Background(), MessageNewEvent{
		UserID:    "u1",
		ChannelID: "m1",
		Text:      "what did we decide?",
	})
	require.NoError(t, err)

	assert.Contains(t, f.ai.lastReq.SystemPrompt, "We planned the launch.")
	assert.Contains(t, f.ai.lastReq.SystemPrompt, "be organized")
	assert.Equal(t, "what did we decide?", f.ai.lastReq.UserMessage)

	// Blank history entries are dropped; agent turns map to assistant.
	require.Len(t, f.ai.lastReq.History, 2)
	assert.Equal(t, ai.RoleUser, f.ai.lastReq.History[0].Role)
	assert.Equal(t, ai.RoleAssistant, f.ai.lastReq.History[1].Role)

	require.Len(t, f.chat.upserted, 1)
	assert.Equal(t, "a1", f.chat.upserted[0].ID)
	assert.Contains(t, f.chat.upserted[0].Image, "bottts-neutral")

	assert.Equal(t, []string{"a reply"}, f.chat.sent)
}

func TestMessageNew_AgentEchoIgnored(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusCompleted}
	f.store.agents["a1"] = &store.Agent{ID: "a1"}

	err := f.svc.Process(context.Background(), MessageNewEvent{
		UserID:    "a1",
		ChannelID: "m1",
		Text:      "a reply",
	})
	require.NoError(t, err)
	assert.Zero(t, f.ai.calls, "the agent must not answer its own messages")
	assert.Empty(t, f.chat.sent)
}

func TestMessageNew_MissingFields(t *testing.T) {
	f := newFixture()
	err := f.svc.Process(context.Background(), MessageNewEvent{UserID: "u1"})
	assert.True(t, plerrors.IsValidation(err))
}

func TestMessageNew_MeetingNotCompleted(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusProcessing}

	err := f.svc.Process(context.Background(), MessageNewEvent{
		UserID:    "u1",
		ChannelID: "m1",
		Text:      "hello?",
	})
	assert.True(t, plerrors.IsNotFound(err))
	assert.Zero(t, f.ai.calls)
}

func TestMessageNew_EmptyCompletion(t *testing.T) {
	f := newFixture()
	f.store.meetings["m1"] = &store.Meeting{ID: "m1", AgentID: "a1", Status: store.StatusCompleted}
	f.store.agents["a1"] = &store.Agent{ID: "a1", Name: "Planner"}
	f.ai.err = plerrors.ErrEmptyCompletion

	err := f.svc.Process(context.Background(), MessageNewEvent{
		UserID:    "u1",
		ChannelID: "m1",
		Text:      "hello?",
	})
	assert.True(t, plerrors.IsEmptyCompletion(err))
	assert.Empty(t, f.chat.sent)
	assert.Empty(t, f.chat.upserted)
}
