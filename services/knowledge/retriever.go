package knowledge

import (
	"context"

	"github.com/upb/llm-chat-gateway/models"
)

// DefaultTopK is the number of documents retrieved per query
const DefaultTopK = 3

// Retriever answers "given a query, return the top-k relevant documents"
type Retriever struct {
	kb   *KnowledgeBase
	topK int
}

// NewRetriever creates a retriever over kb
func NewRetriever(kb *KnowledgeBase, topK int) *Retriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &Retriever{kb: kb, topK: topK}
}

// Retrieve returns documents for query in ascending distance order
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*models.Document, error) {
	hits, err := r.kb.Search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, len(hits))
	for i, hit := range hits {
		docs[i] = hit.Document
	}
	return docs, nil
}
