package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/pkg/ai"
	"github.com/parleyhq/parley/pkg/avatar"
	plerrors "github.com/parleyhq/parley/pkg/errors"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/jobs"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/rtc"
	"github.com/parleyhq/parley/pkg/store"
)

// chatInstructions is the system prompt for post-meeting follow-up chat. The
// first argument is the generated meeting summary, the second the agent's
// original live-meeting instructions.
const chatInstructions = `You are an AI assistant helping the user revisit a recently completed meeting.
Below is a summary of the meeting, generated from the transcript:

%s

The following are your original instructions from the live meeting assistant. Please continue to follow these behavioral guidelines as you assist the user:

%s

The user may ask questions about the meeting, request clarifications, or ask for follow-up actions.
Always base your responses on the meeting summary above.

You also have access to the recent conversation history between you and the user. Use the context of previous messages to provide relevant, coherent, and helpful responses. If the user's question refers to something discussed earlier, make sure to take that into account and maintain continuity in the conversation.

If the summary does not contain enough information to answer a question, politely let the user know.

Be concise, helpful, and focus on providing accurate information from the meeting and the previous conversation.`

// Config tunes webhook event processing.
type Config struct {
	// HandlerTimeout bounds the side effects of a single event.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// HistoryLimit is how many recent chat messages feed the follow-up
	// completion.
	HistoryLimit int `yaml:"history_limit"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout: 30 * time.Second,
		HistoryLimit:   5,
	}
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Store     store.Store
	Calls     rtc.CallController
	Chat      rtc.ChatService
	Provider  ai.Provider
	Queue     jobs.Enqueuer
	Publisher *events.Publisher
	Metrics   *Metrics
	Logger    logging.Logger
}

// Service routes verified, decoded webhook events to their side effects.
// Every handler is safe under at-least-once delivery: state transitions are
// conditional writes and external calls are idempotent or tolerated on
// replay.
type Service struct {
	config    Config
	store     store.Store
	calls     rtc.CallController
	chat      rtc.ChatService
	provider  ai.Provider
	queue     jobs.Enqueuer
	publisher *events.Publisher
	metrics   *Metrics
	tracer    *Tracer
	logger    logging.Logger
	now       func() time.Time
}

// NewService creates an event router.
func NewService(cfg Config, deps Deps) *Service {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultConfig().HandlerTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewNopMetrics()
	}
	return &Service{
		config:    cfg,
		store:     deps.Store,
		calls:     deps.Calls,
		chat:      deps.Chat,
		provider:  deps.Provider,
		queue:     deps.Queue,
		publisher: deps.Publisher,
		metrics:   metrics,
		tracer:    NewTracer(),
		logger:    deps.Logger.With(logging.F("component", "webhook")),
		now:       time.Now,
	}
}

// Process dispatches one decoded event to its handler.
func (s *Service) Process(ctx context.Context, evt Event) error {
	start := s.now()
	kind := evt.Kind()

	ctx, span := s.tracer.StartEventSpan(ctx, kind)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.config.HandlerTimeout)
	defer cancel()

	var err error
	switch e := evt.(type) {
	case SessionStartedEvent:
		err = s.handleSessionStarted(ctx, e)
	case ParticipantLeftEvent:
		err = s.handleParticipantLeft(ctx, e)
	case SessionEndedEvent:
		err = s.handleSessionEnded(ctx, e)
	case TranscriptionReadyEvent:
		err = s.handleTranscriptionReady(ctx, e)
	case RecordingReadyEvent:
		err = s.handleRecordingReady(ctx, e)
	case MessageNewEvent:
		err = s.handleMessageNew(ctx, e)
	default:
		err = fmt.Errorf("no handler for event type %q: %w", kind, plerrors.ErrValidation)
	}

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	s.metrics.EventsTotal.WithLabelValues(string(kind), outcome).Inc()
	s.metrics.HandlerDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	RecordOutcome(span, err)

	if err != nil {
		s.logger.Warn("Webhook event failed",
			logging.F("event_type", string(kind)),
			logging.Err(err))
	}
	return err
}

// handleSessionStarted activates the meeting and connects its AI agent to
// the live call. The status flips to active before the agent is looked up,
// so a concurrent duplicate delivery loses the conditional update and stops
// there.
func (s *Service) handleSessionStarted(ctx context.Context, e SessionStartedEvent) error {
	if e.MeetingID == "" {
		return fmt.Errorf("missing meeting id: %w", plerrors.ErrValidation)
	}
	AnnotateMeeting(ctx, e.MeetingID)

	meeting, err := s.store.StartMeeting(ctx, e.MeetingID, s.now())
	if plerrors.IsNotFound(err) {
		return fmt.Errorf("meeting %s not found or not upcoming: %w", e.MeetingID, plerrors.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("start meeting: %w", err)
	}

	agent, err := s.store.GetAgent(ctx, meeting.AgentID)
	if plerrors.IsNotFound(err) {
		// A started meeting with a dangling agent is a bad payload, not a
		// missing resource: the platform must not retry it.
		return fmt.Errorf("agent %s not found: %w", meeting.AgentID, plerrors.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("agent %s: %w", meeting.AgentID, err)
	}

	if err := s.calls.ConnectAgent(ctx, meeting.ID, agent.ID, agent.Instruction); err != nil {
		return fmt.Errorf("connect agent: %w", err)
	}
	if err := s.calls.UpdateAgentInstructions(ctx, meeting.ID, agent.Instruction); err != nil {
		return fmt.Errorf("update agent instructions: %w", err)
	}

	s.publisher.StatusChanged(ctx, meeting.ID, store.StatusActive)
	s.logger.Info("Meeting started",
		logging.F("meeting_id", meeting.ID),
		logging.F("agent_id", agent.ID))
	return nil
}

// handleParticipantLeft ends the call session. The platform ends calls for
// everyone, including the AI participant, once any participant leaves.
func (s *Service) handleParticipantLeft(ctx context.Context, e ParticipantLeftEvent) error {
	callType, meetingID := SplitCallCID(e.CallCID)
	if meetingID == "" {
		return fmt.Errorf("missing meeting id in call cid %q: %w", e.CallCID, plerrors.ErrValidation)
	}
	AnnotateMeeting(ctx, meetingID)

	if err := s.calls.EndCall(ctx, callType, meetingID); err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	return nil
}

// handleSessionEnded moves the meeting from active to processing. Redelivery
// after the transition is a no-op.
func (s *Service) handleSessionEnded(ctx context.Context, e SessionEndedEvent) error {
	if e.MeetingID == "" {
		return fmt.Errorf("missing meeting id: %w", plerrors.ErrValidation)
	}
	AnnotateMeeting(ctx, e.MeetingID)

	changed, err := s.store.FinishMeeting(ctx, e.MeetingID, s.now())
	if err != nil {
		return fmt.Errorf("finish meeting: %w", err)
	}
	if !changed {
		s.logger.Debug("Session ended for non-active meeting, ignoring",
			logging.F("meeting_id", e.MeetingID))
		return nil
	}

	s.publisher.StatusChanged(ctx, e.MeetingID, store.StatusProcessing)
	s.logger.Info("Meeting ended", logging.F("meeting_id", e.MeetingID))
	return nil
}

// handleTranscriptionReady records the transcript location and enqueues
// exactly one summarization job for this delivery.
func (s *Service) handleTranscriptionReady(ctx context.Context, e TranscriptionReadyEvent) error {
	_, meetingID := SplitCallCID(e.CallCID)
	if meetingID == "" {
		return fmt.Errorf("missing meeting id in call cid %q: %w", e.CallCID, plerrors.ErrValidation)
	}
	AnnotateMeeting(ctx, meetingID)

	meeting, err := s.store.SetTranscriptURL(ctx, meetingID, e.URL)
	if err != nil {
		return fmt.Errorf("set transcript url: %w", err)
	}

	msg := &jobs.SummarizeMessage{MeetingID: meeting.ID, TranscriptURL: e.URL}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue summarize job: %v: %w", err, plerrors.ErrUpstream)
	}

	s.publisher.TranscriptReady(ctx, meeting.ID, e.URL)
	s.logger.Info("Transcript ready", logging.F("meeting_id", meeting.ID))
	return nil
}

// handleRecordingReady records the recording location. Last write wins,
// whatever state the meeting is in.
func (s *Service) handleRecordingReady(ctx context.Context, e RecordingReadyEvent) error {
	_, meetingID := SplitCallCID(e.CallCID)
	if meetingID == "" {
		return fmt.Errorf("missing meeting id in call cid %q: %w", e.CallCID, plerrors.ErrValidation)
	}
	AnnotateMeeting(ctx, meetingID)

	if err := s.store.SetRecordingURL(ctx, meetingID, e.URL); err != nil {
		return fmt.Errorf("set recording url: %w", err)
	}
	return nil
}

// handleMessageNew answers a follow-up chat message on a completed meeting's
// channel as the meeting's agent. Messages authored by the agent itself are
// ignored so the agent never answers its own replies.
func (s *Service) handleMessageNew(ctx context.Context, e MessageNewEvent) error {
	if e.UserID == "" || e.ChannelID == "" || e.Text == "" {
		return fmt.Errorf("missing required message fields: %w", plerrors.ErrValidation)
	}
	AnnotateChannel(ctx, e.ChannelID)

	meeting, err := s.store.GetCompletedMeeting(ctx, e.ChannelID)
	if err != nil {
		return fmt.Errorf("completed meeting %s: %w", e.ChannelID, err)
	}

	agent, err := s.store.GetAgent(ctx, meeting.AgentID)
	if err != nil {
		return fmt.Errorf("agent %s: %w", meeting.AgentID, err)
	}

	if e.UserID == agent.ID {
		return nil
	}

	recent, err := s.chat.RecentMessages(ctx, e.ChannelID, s.config.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load channel history: %w", err)
	}

	history := make([]ai.ChatMessage, 0, len(recent))
	for _, msg := range recent {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		role := ai.RoleUser
		if msg.UserID == agent.ID {
			role = ai.RoleAssistant
		}
		history = append(history, ai.ChatMessage{Role: role, Content: msg.Text})
	}

	summary := ""
	if meeting.Summary != nil {
		summary = *meeting.Summary
	}

	resp, err := s.provider.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: fmt.Sprintf(chatInstructions, summary, agent.Instruction),
		History:      history,
		UserMessage:  e.Text,
	})
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	agentUser := rtc.ChatUser{
		ID:    agent.ID,
		Name:  agent.Name,
		Image: avatar.URL(agent.Name, avatar.VariantBotttsNeutral),
	}
	if err := s.chat.UpsertUser(ctx, agentUser); err != nil {
		return fmt.Errorf("upsert agent chat user: %w", err)
	}
	if err := s.chat.SendMessage(ctx, e.ChannelID, agentUser, resp.Content); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	s.logger.Info("Posted follow-up reply",
		logging.F("meeting_id", meeting.ID),
		logging.F("agent_id", agent.ID))
	return nil
}
