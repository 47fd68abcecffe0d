package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/llm-chat-gateway/services/providers"
)

func TestAdapter_ChatCompletion(t *testing.T) {
	var received messagesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"model": "claude-2",
			"content": [{"type": "text", "text": "Paris"}, {"type": "text", "text": " it is."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model: "claude-2",
		Messages: []providers.Message{
			{Role: "system", Content: "Answer briefly."},
			{Role: "user", Content: "Capital of France?"},
		},
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris it is.", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "Answer briefly.", received.System)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, "user", received.Messages[0].Role)
	assert.Equal(t, defaultMaxTokens, received.MaxTokens)
}

func TestAdapter_ChatCompletion_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, true},
		{"rate limited", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`, true},
		{"invalid request", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, false},
		{"auth", 401, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
			_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "claude-2"})

			var provErr *providers.ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.wantRetryable, provErr.Retryable)
		})
	}
}

func TestAdapter_CountTokens(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{})
	assert.Equal(t, 10, adapter.CountTokens("claude-2", "0123456789012345678901234567890123456789"))
	assert.Equal(t, 0, adapter.CountTokens("claude-2", "abc"))
}
