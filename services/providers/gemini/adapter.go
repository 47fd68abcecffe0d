package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/upb/llm-chat-gateway/services/providers"
)

const providerName = "gemini"

// contentGenerator is the slice of genai.Models the adapter uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Adapter implements the Provider interface on top of the genai SDK
type Adapter struct {
	models contentGenerator
}

// NewAdapter creates a Gemini API adapter
func NewAdapter(ctx context.Context, config providers.ProviderConfig) (*Adapter, error) {
	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions.BaseURL = config.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Adapter{models: client.Models}, nil
}

func (a *Adapter) Name() string { return providerName }

// CountTokens approximates 4 characters per token
func (a *Adapter) CountTokens(_ string, text string) int {
	return providers.ApproxTokens(text)
}

func (a *Adapter) ListModels() []string {
	return []string{"gemini-2.5-flash", "gemini-2.5-pro"}
}

// ChatCompletion sends the transcript as contents with the system message
// moved into SystemInstruction
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()
	contents, config := buildRequest(req)

	resp, err := a.models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, providers.NewProviderError(providerName, "EMPTY_RESPONSE", "Response contained no candidates", 0, true, nil)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	out := &providers.ChatResponse{
		ID:           resp.ResponseID,
		Model:        req.Model,
		Provider:     providerName,
		Content:      text.String(),
		FinishReason: string(candidate.FinishReason),
		Latency:      time.Since(startTime),
		Created:      time.Now(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = providers.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func buildRequest(req *providers.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(float32(req.TopP))
	}
	if len(req.Stop) > 0 {
		config.StopSequences = req.Stop
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			config.SystemInstruction = genai.NewContentFromText(msg.Content, "")
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, config
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewProviderError(providerName, apiErr.Status, apiErr.Message, apiErr.Code,
			providers.RetryableStatus(apiErr.Code), err)
	}
	retryable := !errors.Is(err, context.Canceled)
	return providers.NewProviderError(providerName, "HTTP_ERROR", "request failed", 0, retryable, err)
}
