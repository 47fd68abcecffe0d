// Package embedding turns text into fixed-dimension vectors for the knowledge base.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/upb/llm-chat-gateway/services"
)

// Embedder produces a vector for a piece of text. Implementations must
// return vectors of exactly Dimension() elements.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names accepted by New
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config selects and configures an embedding backend
type Config struct {
	Provider  string
	Model     string
	Dimension int
	APIKey    string
	BaseURL   string
}

// New builds the configured embedder. A "none" provider yields a nil
// embedder, which the knowledge base reports as EmbeddingUnavailable.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderLocal:
		return NewHashEmbedder(cfg.Model, cfg.Dimension), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, services.EmbeddingUnavailable("openai embedding requires an API key", nil)
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension), nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, services.EmbeddingUnavailable("gemini embedding requires an API key", nil)
		}
		return NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimension)
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// checkDimension wraps a wrong-length vector as DimensionMismatch
func checkDimension(want int, vec []float32) error {
	if len(vec) != want {
		return services.DimensionMismatch(want, len(vec))
	}
	return nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
