package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/upb/llm-chat-gateway/services/providers"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestAdapter_ChatCompletion(t *testing.T) {
	fake := &fakeModels{
		resp: &genai.GenerateContentResponse{
			ResponseID: "resp-1",
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{Text: "Paris"}, {Text: "."}},
				},
				FinishReason: genai.FinishReasonStop,
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount:     8,
				CandidatesTokenCount: 2,
				TotalTokenCount:      10,
			},
		},
	}
	adapter := &Adapter{models: fake}

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model: "gemini-2.5-flash",
		Messages: []providers.Message{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "Capital of France?"},
			{Role: "assistant", Content: "Paris."},
			{Role: "user", Content: "Sure?"},
		},
		MaxTokens:   100,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris.", resp.Content)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
	assert.Equal(t, "STOP", resp.FinishReason)

	assert.Equal(t, "gemini-2.5-flash", fake.model)
	require.Len(t, fake.contents, 3)
	assert.Equal(t, genai.RoleUser, fake.contents[0].Role)
	assert.Equal(t, genai.RoleModel, fake.contents[1].Role)
	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, "Be brief.", fake.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(100), fake.config.MaxOutputTokens)
	require.NotNil(t, fake.config.Temperature)
	assert.InDelta(t, 0.7, *fake.config.Temperature, 1e-6)
}

func TestAdapter_ChatCompletion_Errors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRetryable bool
		wantStatus    int
	}{
		{"server error", genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "try later"}, true, 503},
		{"quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}, true, 429},
		{"invalid argument", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad"}, false, 400},
		{"network", errors.New("connection reset"), true, 0},
		{"canceled", context.Canceled, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &Adapter{models: &fakeModels{err: tt.err}}
			_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gemini-2.5-flash"})

			var provErr *providers.ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.wantRetryable, provErr.Retryable)
			assert.Equal(t, tt.wantStatus, provErr.StatusCode)
		})
	}
}

func TestAdapter_EmptyCandidates(t *testing.T) {
	adapter := &Adapter{models: &fakeModels{resp: &genai.GenerateContentResponse{}}}
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gemini-2.5-flash"})
	assert.True(t, providers.IsRetryable(err))
}
