package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parleyhq/parley/pkg/ai"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/store"
)

// summarizerPrompt instructs the model how to write meeting summaries.
const summarizerPrompt = `You are an expert summarizer. You write readable, concise, simple content.

Use the following markdown structure for every summary:

### Overview
Provide a detailed, engaging summary of the session's content. Focus on major features, workflows, and key takeaways as if walking through the meeting chronologically.

### Notes
Break the content into thematic sections with timestamp ranges. Each section should summarize key points, actions, or demos in bullet format.`

// TranscriptSegment is one line of the platform's JSONL transcript.
type TranscriptSegment struct {
	SpeakerID string `json:"speaker_id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	StartTS   int64  `json:"start_ts"`
	StopTS    int64  `json:"stop_ts"`
}

// Summarizer handles summarization jobs: it fetches the transcript, asks the
// completion provider for a summary, and completes the meeting.
type Summarizer struct {
	store      store.Store
	provider   ai.Provider
	publisher  *events.Publisher
	httpClient *http.Client
	logger     logging.Logger
}

// NewSummarizer creates a summarization job handler.
func NewSummarizer(s store.Store, provider ai.Provider, publisher *events.Publisher, logger logging.Logger) *Summarizer {
	return &Summarizer{
		store:     s,
		provider:  provider,
		publisher: publisher,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(logging.F("component", "summarizer")),
	}
}

// Handle processes one summarization job. Redelivery is safe: the final
// transition is conditional on the meeting still being in processing.
func (s *Summarizer) Handle(ctx context.Context, qm *QueuedMessage) error {
	msg, err := qm.ParseSummarize()
	if err != nil {
		return err
	}

	log := s.logger.With(logging.F("meeting_id", msg.MeetingID))

	segments, err := s.fetchTranscript(ctx, msg.TranscriptURL)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}
	if len(segments) == 0 {
		log.Warn("Transcript contained no speech segments")
	}

	transcript := s.renderTranscript(ctx, msg.MeetingID, segments)

	resp, err := s.provider.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: summarizerPrompt,
		UserMessage:  "Summarize the following transcript:\n\n" + transcript,
	})
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	changed, err := s.store.CompleteMeeting(ctx, msg.MeetingID, resp.Content)
	if err != nil {
		return fmt.Errorf("complete meeting: %w", err)
	}
	if !changed {
		// Redelivered job against an already-completed meeting.
		log.Info("Meeting already completed, skipping")
		return nil
	}

	s.publisher.Completed(ctx, msg.MeetingID)
	s.publisher.StatusChanged(ctx, msg.MeetingID, store.StatusCompleted)

	log.Info("Summary stored", logging.F("model", resp.Model))
	return nil
}

// fetchTranscript downloads and parses the JSONL transcript.
func (s *Summarizer) fetchTranscript(ctx context.Context, url string) ([]TranscriptSegment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create transcript request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript fetch returned %d", resp.StatusCode)
	}

	return ParseTranscript(resp.Body)
}

// ParseTranscript decodes JSONL speech segments. Unparseable lines are
// skipped rather than failing the whole transcript.
func ParseTranscript(r io.Reader) ([]TranscriptSegment, error) {
	var segments []TranscriptSegment

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var seg TranscriptSegment
		if err := json.Unmarshal([]byte(line), &seg); err != nil {
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		segments = append(segments, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return segments, nil
}

// renderTranscript turns segments into speaker-attributed lines. Speaker ids
// matching the meeting's agent are replaced with the agent's display name.
func (s *Summarizer) renderTranscript(ctx context.Context, meetingID string, segments []TranscriptSegment) string {
	names := map[string]string{}
	if meeting, err := s.store.GetMeeting(ctx, meetingID); err == nil {
		if agent, err := s.store.GetAgent(ctx, meeting.AgentID); err == nil {
			names[agent.ID] = agent.Name
		}
	}

	var b strings.Builder
	for _, seg := range segments {
		speaker := seg.SpeakerID
		if name, ok := names[speaker]; ok {
			speaker = name
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, seg.Text)
	}
	return b.String()
}
