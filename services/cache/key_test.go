package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upb/llm-chat-gateway/models"
)

func TestKey(t *testing.T) {
	base := models.Transcript{models.System("sys"), models.User("hello"), models.Assistant("hi")}

	t.Run("deterministic", func(t *testing.T) {
		again := models.Transcript{models.System("sys"), models.User("hello"), models.Assistant("hi")}
		assert.Equal(t, Key("gpt-4", base, "how are you"), Key("gpt-4", again, "how are you"))
	})

	t.Run("prefixed hex digest", func(t *testing.T) {
		k := Key("gpt-4", base, "x")
		assert.True(t, strings.HasPrefix(k, "response:"))
		assert.Len(t, strings.TrimPrefix(k, "response:"), 64)
	})

	t.Run("scope partitions keys", func(t *testing.T) {
		assert.NotEqual(t, Key("gpt-4", base, "x"), Key("claude-2", base, "x"))
	})

	t.Run("nil and empty transcripts agree", func(t *testing.T) {
		assert.Equal(t, Key("gpt-4", nil, "x"), Key("gpt-4", models.Transcript{}, "x"))
	})

	tests := []struct {
		name       string
		transcript models.Transcript
		message    string
	}{
		{"different message", base, "other"},
		{"different role", models.Transcript{models.System("sys"), models.User("hello"), models.User("hi")}, "how are you"},
		{"different content", models.Transcript{models.System("sys"), models.User("hello!"), models.Assistant("hi")}, "how are you"},
		{"turn moved into message", base[:2], "hi how are you"},
		{"reordered", models.Transcript{models.System("sys"), models.Assistant("hi"), models.User("hello")}, "how are you"},
	}
	want := Key("gpt-4", base, "how are you")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, want, Key("gpt-4", tt.transcript, tt.message))
		})
	}
}
