// Package knowledge implements the vector knowledge base used for
// retrieval-augmented generation: an exact L2 index over document
// embeddings, a record store addressed by index position, and two-file
// persistence.
package knowledge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/services/embedding"
)

// KnowledgeBase couples a vector index with its document records. Reads run
// concurrently; Add, Remove and Load are serialized against everything else.
// Embedding calls happen outside the lock.
type KnowledgeBase struct {
	mu       sync.RWMutex
	index    VectorIndex
	store    *recordStore
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Stats summarizes the knowledge base contents
type Stats struct {
	Documents int    `json:"documents"`
	Positions int    `json:"positions"`
	Live      int    `json:"live_positions"`
	Dimension int    `json:"dimension"`
	Embedder  string `json:"embedder"`
}

// New creates an empty knowledge base. A nil embedder is allowed: documents
// that carry their own embedding can still be added, but search and
// embedding-less adds fail with EmbeddingUnavailable.
func New(dimension int, embedder embedding.Embedder, logger *zap.Logger) *KnowledgeBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeBase{
		index:    NewFlatIndex(dimension),
		store:    newRecordStore(),
		embedder: embedder,
		logger:   logger,
	}
}

// Dimension returns the fixed vector dimension
func (kb *KnowledgeBase) Dimension() int {
	return kb.index.Dimension()
}

// Add indexes a document, embedding its content first if it has no vector.
// Every call grows the index by exactly one position, including calls that
// reuse an existing id. Content may be empty only when a vector is supplied.
func (kb *KnowledgeBase) Add(ctx context.Context, doc *models.Document) (int, error) {
	if doc == nil {
		return 0, services.NewDomainError(services.ErrorTypeValidation, "document is required", nil)
	}
	if doc.Content == "" && !doc.HasEmbedding() {
		return 0, services.NewDomainError(services.ErrorTypeValidation, "document content is required to compute an embedding", nil)
	}
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Metadata = normalizeMetadata(doc.Metadata)

	if !doc.HasEmbedding() {
		vec, err := kb.embed(ctx, doc.Content)
		if err != nil {
			return 0, err
		}
		doc.Embedding = vec
	}
	if len(doc.Embedding) != kb.index.Dimension() {
		return 0, services.DimensionMismatch(kb.index.Dimension(), len(doc.Embedding))
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	pos, err := kb.index.Add(doc.Embedding)
	if err != nil {
		return 0, err
	}
	if storePos := kb.store.append(doc); storePos != pos {
		return 0, services.WrapInternal("index and record store out of step",
			fmt.Errorf("index position %d, store position %d", pos, storePos))
	}

	kb.logger.Debug("document indexed",
		zap.String("document_id", doc.ID),
		zap.Int("position", pos),
	)
	return pos, nil
}

// Search embeds query and returns up to k documents nearest to it
func (kb *KnowledgeBase) Search(ctx context.Context, query string, k int) ([]models.ScoredDocument, error) {
	if k < 1 {
		return nil, services.ErrInvalidSearch
	}
	vec, err := kb.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return kb.SearchVector(vec, k)
}

// SearchVector returns up to k documents nearest to vec in ascending
// distance order, earlier positions first on ties.
func (kb *KnowledgeBase) SearchVector(vec []float32, k int) ([]models.ScoredDocument, error) {
	if k < 1 {
		return nil, services.ErrInvalidSearch
	}

	kb.mu.RLock()
	defer kb.mu.RUnlock()

	hits, err := kb.index.Search(vec, k, kb.store.isLive)
	if err != nil {
		return nil, err
	}

	results := make([]models.ScoredDocument, 0, len(hits))
	for i, hit := range hits {
		results = append(results, models.ScoredDocument{
			Document: kb.store.at(hit.Position).Clone(),
			Distance: hit.Distance,
			Rank:     i + 1,
		})
	}
	return results, nil
}

// Get returns a copy of the document stored under id
func (kb *KnowledgeBase) Get(id string) (*models.Document, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	doc, ok := kb.store.get(id)
	if !ok {
		return nil, services.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

// Remove tombstones every position holding id. The positions stay allocated
// until the next Save, which writes only live entries.
func (kb *KnowledgeBase) Remove(id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if !kb.store.remove(id) {
		return services.ErrDocumentNotFound
	}
	kb.logger.Debug("document removed", zap.String("document_id", id))
	return nil
}

// Len returns the number of index positions, removed ones included
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.index.Size()
}

// Stats reports counts for operators
func (kb *KnowledgeBase) Stats() Stats {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	name := "none"
	if kb.embedder != nil {
		name = kb.embedder.Name()
	}
	return Stats{
		Documents: len(kb.store.docs),
		Positions: kb.index.Size(),
		Live:      kb.store.live,
		Dimension: kb.index.Dimension(),
		Embedder:  name,
	}
}

func (kb *KnowledgeBase) embed(ctx context.Context, text string) ([]float32, error) {
	if kb.embedder == nil {
		return nil, services.ErrEmbeddingUnavailable
	}
	vec, err := kb.embedder.Embed(ctx, text)
	if err != nil {
		if services.GetErrorType(err) != "" {
			return nil, err
		}
		return nil, services.EmbeddingUnavailable("embedding failed", err)
	}
	if len(vec) != kb.index.Dimension() {
		return nil, services.DimensionMismatch(kb.index.Dimension(), len(vec))
	}
	return vec, nil
}
