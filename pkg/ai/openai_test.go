package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plerrors "github.com/parleyhq/parley/pkg/errors"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
}

func TestComplete_BuildsMessageSequence(t *testing.T) {
	var got chatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(chatResponse{
			Model: "test-model",
			Choices: []chatChoice{
				{Message: chatMessage{Role: "assistant", Content: "the summary says X"}, FinishReason: "stop"},
			},
			Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "you are helpful",
		History: []ChatMessage{
			{Role: RoleUser, Content: "earlier question"},
			{Role: RoleAssistant, Content: "earlier answer"},
		},
		UserMessage: "what was decided?",
	})
	require.NoError(t, err)

	assert.Equal(t, "the summary says X", resp.Content)
	assert.Equal(t, 15, resp.TokensUsed.Total)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "user", got.Messages[3].Role)
	assert.Equal(t, "what was decided?", got.Messages[3].Content)
}

func TestComplete_NoSystemPrompt(t *testing.T) {
	var got chatRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "ok"}}},
		})
	})

	_, err := provider.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestComplete_EmptyCompletion(t *testing.T) {
	tests := []struct {
		name string
		resp chatResponse
	}{
		{"no choices", chatResponse{}},
		{"blank content", chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "   "}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.resp)
			})

			_, err := provider.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
			assert.True(t, plerrors.IsEmptyCompletion(err), "expected ErrEmptyCompletion, got %v", err)
		})
	}
}

func TestComplete_UpstreamError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := provider.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	assert.True(t, plerrors.IsUpstream(err), "expected ErrUpstream, got %v", err)
}

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	assert.Equal(t, "openai-gpt-4o-mini", p.Name())
	assert.Equal(t, "https://api.openai.com", p.config.BaseURL)
	assert.NotZero(t, p.config.Timeout)
}
