package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	plerrors "github.com/parleyhq/parley/pkg/errors"
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com". Any server
	// exposing the OpenAI chat completions API works.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model selects the completion model.
	Model string

	// Timeout bounds each completion call.
	Timeout time.Duration
}

// DefaultOpenAIConfig returns provider defaults matching the hosted API.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "gpt-4o-mini",
		Timeout: 30 * time.Second,
	}
}

// OpenAIProvider implements Provider against the OpenAI-compatible chat
// completions API.
type OpenAIProvider struct {
	config     OpenAIConfig
	httpClient *http.Client
	name       string
}

// NewOpenAIProvider creates a new provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIConfig().BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOpenAIConfig().Timeout
	}
	return &OpenAIProvider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		name: fmt.Sprintf("openai-%s", cfg.Model),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// chatMessage is a message on the wire.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completion request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatChoice represents a completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage represents token usage.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponse is the OpenAI-compatible chat completion response.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete sends a completion request and returns the response.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var messages []chatMessage

	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: string(RoleSystem), Content: req.SystemPrompt})
	}
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: string(RoleUser), Content: req.UserMessage})

	chatReq := chatRequest{
		Model:       p.config.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimSuffix(p.config.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("completion request timed out: %w", plerrors.ErrUpstream)
		}
		return nil, fmt.Errorf("completion request failed: %v: %w", err, plerrors.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", plerrors.ErrUpstream)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion provider returned %d: %w", resp.StatusCode, plerrors.ErrUpstream)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("decode completion response: %v: %w", err, plerrors.ErrUpstream)
	}

	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return nil, plerrors.ErrEmptyCompletion
	}

	choice := chatResp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        chatResp.Model,
		FinishReason: choice.FinishReason,
		TokensUsed: TokenUsage{
			Prompt:     chatResp.Usage.PromptTokens,
			Completion: chatResp.Usage.CompletionTokens,
			Total:      chatResp.Usage.TotalTokens,
		},
	}, nil
}
