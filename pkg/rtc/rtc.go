// Package rtc talks to the realtime communication platform's server-side
// APIs: call control for the live meeting and chat control for the post-call
// follow-up channel.
package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	plerrors "github.com/parleyhq/parley/pkg/errors"
)

// DefaultCallType is the platform call type parley schedules meetings under.
// Composite call ids on webhook payloads look like "default:<meetingId>".
const DefaultCallType = "default"

// CallController starts, steers, and ends AI call participants.
type CallController interface {
	// ConnectAgent attaches a realtime AI participant to the named call and
	// sets its live behavioral instructions.
	ConnectAgent(ctx context.Context, callID, agentID, instructions string) error

	// UpdateAgentInstructions replaces the live instructions of the call's
	// AI participant.
	UpdateAgentInstructions(ctx context.Context, callID, instructions string) error

	// EndCall ends a call session by composite id. Ending a call that has
	// already ended is not an error.
	EndCall(ctx context.Context, callType, callID string) error
}

// ChatUser is a chat identity for upserts and message sends.
type ChatUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Message is a chat message as returned by the platform.
type Message struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

// ChatService reads and writes the meeting's follow-up chat channel.
type ChatService interface {
	// RecentMessages returns up to limit most recent messages on the
	// channel, oldest first.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)

	// UpsertUser creates or updates a chat identity.
	UpsertUser(ctx context.Context, user ChatUser) error

	// SendMessage posts text to the channel as the given identity.
	SendMessage(ctx context.Context, channelID string, user ChatUser, text string) error
}

// Config holds platform API credentials and endpoints.
type Config struct {
	// BaseURL is the platform API root.
	BaseURL string `yaml:"base_url"`

	// APIKey identifies the application.
	APIKey string `yaml:"api_key"`

	// APISecret signs server-side requests and inbound webhooks.
	APISecret string `yaml:"api_secret"`

	// Timeout bounds each API call.
	Timeout time.Duration `yaml:"timeout"`
}

// Validate checks required credentials.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("rtc base url is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("rtc api key is required")
	}
	if c.APISecret == "" {
		return fmt.Errorf("rtc api secret is required")
	}
	return nil
}

// Client implements CallController and ChatService over the platform's REST
// API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a platform client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ConnectAgent attaches a realtime AI participant to the call.
func (c *Client) ConnectAgent(ctx context.Context, callID, agentID, instructions string) error {
	path := fmt.Sprintf("/video/call/%s/%s/agents", DefaultCallType, url.PathEscape(callID))
	payload := map[string]any{
		"agent_user_id": agentID,
		"session": map[string]any{
			"instructions": instructions,
		},
	}
	return c.post(ctx, path, payload, nil)
}

// UpdateAgentInstructions replaces the AI participant's live instructions.
func (c *Client) UpdateAgentInstructions(ctx context.Context, callID, instructions string) error {
	path := fmt.Sprintf("/video/call/%s/%s/agents/session", DefaultCallType, url.PathEscape(callID))
	payload := map[string]any{
		"instructions": instructions,
	}
	return c.post(ctx, path, payload, nil)
}

// EndCall marks the call ended. A 404 from the platform means the call is
// already gone and is treated as success so redelivered participant_left
// events stay idempotent.
func (c *Client) EndCall(ctx context.Context, callType, callID string) error {
	if callType == "" {
		callType = DefaultCallType
	}
	path := fmt.Sprintf("/video/call/%s/%s/mark_ended", url.PathEscape(callType), url.PathEscape(callID))
	err := c.post(ctx, path, map[string]any{}, nil)
	if plerrors.IsNotFound(err) {
		return nil
	}
	return err
}

// RecentMessages returns the channel's most recent messages, oldest first.
func (c *Client) RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 25
	}
	path := fmt.Sprintf("/chat/channels/messaging/%s/messages?limit=%d", url.PathEscape(channelID), limit)

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// UpsertUser creates or updates a chat identity.
func (c *Client) UpsertUser(ctx context.Context, user ChatUser) error {
	payload := map[string]any{
		"users": map[string]ChatUser{
			user.ID: user,
		},
	}
	return c.post(ctx, "/chat/users", payload, nil)
}

// SendMessage posts a message to the channel as the given identity.
func (c *Client) SendMessage(ctx context.Context, channelID string, user ChatUser, text string) error {
	path := fmt.Sprintf("/chat/channels/messaging/%s/message", url.PathEscape(channelID))
	payload := map[string]any{
		"message": map[string]any{
			"text": text,
			"user": user,
		},
	}
	return c.post(ctx, path, payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rtc request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	u := strings.TrimSuffix(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create rtc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APISecret)
	req.Header.Set("X-API-Key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rtc request failed: %v: %w", err, plerrors.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read rtc response: %w", plerrors.ErrUpstream)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("rtc resource missing: %w", plerrors.ErrNotFound)
	case resp.StatusCode >= 400:
		return fmt.Errorf("rtc api returned %d: %s: %w", resp.StatusCode, truncate(respBody, 200), plerrors.ErrUpstream)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode rtc response: %v: %w", err, plerrors.ErrUpstream)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
