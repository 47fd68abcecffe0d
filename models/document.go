package models

import (
	"github.com/google/uuid"
)

// Document is a unit of knowledge base content. Embedding is nil until the
// document is indexed, after which it never changes.
type Document struct {
	ID        string                 `json:"id" validate:"required"`
	Content   string                 `json:"content" validate:"required"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding"`
}

// NewDocument creates a document with a generated ID
func NewDocument(content string, metadata map[string]interface{}) *Document {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Document{
		ID:       uuid.New().String(),
		Content:  content,
		Metadata: metadata,
	}
}

// HasEmbedding reports whether the document already carries a vector
func (d *Document) HasEmbedding() bool {
	return len(d.Embedding) > 0
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		ID:      d.ID,
		Content: d.Content,
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	if d.Embedding != nil {
		out.Embedding = append([]float32(nil), d.Embedding...)
	}
	return out
}

// ScoredDocument is a search hit with its L2 distance to the query
type ScoredDocument struct {
	Document *Document `json:"document"`
	Distance float32   `json:"distance"`
	Rank     int       `json:"rank"`
}
