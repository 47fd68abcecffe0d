package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const defaultLocalModel = "hashing-ngram-v1"

// HashEmbedder is a deterministic, offline embedder based on feature
// hashing of lower-cased words and character trigrams. Vectors are
// L2-normalized so that distances are comparable across texts of any length.
type HashEmbedder struct {
	model     string
	dimension int
}

// NewHashEmbedder creates a local embedder with the given dimension
func NewHashEmbedder(model string, dimension int) *HashEmbedder {
	if model == "" {
		model = defaultLocalModel
	}
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{model: model, dimension: dimension}
}

func (e *HashEmbedder) Name() string   { return "local:" + e.model }
func (e *HashEmbedder) Dimension() int { return e.dimension }

// Embed hashes each feature into a bucket and accumulates a signed weight.
// The sign bit comes from a second hash so collisions tend to cancel out.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dimension)
	for _, word := range tokenize(text) {
		e.accumulate(vec, "w:"+word, 1.0)

		padded := "^" + word + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			e.accumulate(vec, "t:"+string(runes[i:i+3]), 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) accumulate(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	bucket := h % uint64(e.dimension)
	if (h>>63)&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
