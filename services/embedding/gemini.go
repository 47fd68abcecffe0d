package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/upb/llm-chat-gateway/services"
)

const defaultGeminiModel = "gemini-embedding-001"

// GeminiEmbedder embeds text through the Gemini API
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiEmbedder creates a Gemini embedder backed by the genai SDK
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dimension}, nil
}

func (e *GeminiEmbedder) Name() string   { return "gemini:" + e.model }
func (e *GeminiEmbedder) Dimension() int { return e.dimension }

// Embed requests one embedding with the output size pinned to the index dimension
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(e.dimension)),
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, services.EmbeddingUnavailable(fmt.Sprintf("gemini embedding error: %s", apiErr.Message), err).
				WithDetail("status_code", apiErr.Code)
		}
		return nil, services.EmbeddingUnavailable("gemini embedding request failed", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, services.EmbeddingUnavailable("gemini returned no embeddings", nil)
	}

	vec := append([]float32(nil), resp.Embeddings[0].Values...)
	if err := checkDimension(e.dimension, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
