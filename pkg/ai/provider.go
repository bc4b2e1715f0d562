// Package ai provides chat completion generation for agent responses.
package ai

import (
	"context"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single conversation turn.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a chat completion call: a system instruction,
// prior conversation turns, and the new user message.
type CompletionRequest struct {
	// SystemPrompt is the system-level instruction for the model.
	SystemPrompt string

	// History holds prior conversation turns, oldest first.
	History []ChatMessage

	// UserMessage is the new user turn the model should answer.
	UserMessage string

	// MaxTokens limits response length (0 = provider default).
	MaxTokens int

	// Temperature controls randomness (0 = provider default).
	Temperature float32
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	// Content is the raw text response from the model.
	Content string

	// Model is the actual model used (may differ from requested).
	Model string

	// FinishReason indicates why the model stopped generating.
	FinishReason string

	// TokensUsed tracks token consumption.
	TokensUsed TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// Provider is the interface for chat completion backends.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-gpt-4o-mini").
	Name() string

	// Complete sends a completion request and returns the response. An empty
	// completion is reported as ErrEmptyCompletion, never as a nil response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
