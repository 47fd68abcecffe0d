package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/internal/observability"
	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services/knowledge"
	"github.com/upb/llm-chat-gateway/utils"
)

const (
	defaultSearchK = knowledge.DefaultTopK
	maxSearchK     = 100
)

// KnowledgeService is the knowledge base surface exposed over HTTP
type KnowledgeService interface {
	Add(ctx context.Context, doc *models.Document) (int, error)
	Search(ctx context.Context, query string, k int) ([]models.ScoredDocument, error)
	Remove(id string) error
	Stats() knowledge.Stats
	Save(base string) error
}

// AddDocumentRequest is the body of POST /api/v1/documents
type AddDocumentRequest struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// AddDocumentResponse reports where a document was indexed
type AddDocumentResponse struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// SearchHit is a search result without the raw embedding
type SearchHit struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Distance float32                `json:"distance"`
	Rank     int                    `json:"rank"`
}

// DocumentHandler handles knowledge base HTTP requests
type DocumentHandler struct {
	kb       KnowledgeService
	savePath string
	logger   *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler. savePath is the artifact
// base used by the save endpoint.
func NewDocumentHandler(kb KnowledgeService, savePath string, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		kb:       kb,
		savePath: savePath,
		logger:   logger,
	}
}

// HandleAdd handles POST /api/v1/documents
func (h *DocumentHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)

	var req AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	doc := models.NewDocument(req.Content, req.Metadata)
	if req.ID != "" {
		doc.ID = req.ID
	}

	pos, err := h.kb.Add(ctx, doc)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("document added",
		zap.String("document_id", doc.ID),
		zap.Int("position", pos))

	if err := utils.WriteCreated(w, AddDocumentResponse{ID: doc.ID, Position: pos}); err != nil {
		logger.Error("failed to write add response", zap.Error(err))
	}
}

// HandleSearch handles GET /api/v1/documents/search?q=&k=
func (h *DocumentHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)

	query := r.URL.Query().Get("q")
	if err := utils.ValidateVar("q", query, "required"); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	k := defaultSearchK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "k must be an integer", nil)
			return
		}
		k = parsed
	}
	if err := utils.ValidateVar("k", k, "gte=1,lte="+strconv.Itoa(maxSearchK)); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	results, err := h.kb.Search(ctx, query, k)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	hits := make([]SearchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, SearchHit{
			ID:       res.Document.ID,
			Content:  res.Document.Content,
			Metadata: res.Document.Metadata,
			Distance: res.Distance,
			Rank:     res.Rank,
		})
	}

	if err := utils.WriteOK(w, hits); err != nil {
		logger.Error("failed to write search response", zap.Error(err))
	}
}

// HandleDelete handles DELETE /api/v1/documents/{id}
func (h *DocumentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	id := chi.URLParam(r, "id")
	if id == "" {
		_ = utils.WriteBadRequest(w, "document id is required", nil)
		return
	}

	if err := h.kb.Remove(id); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Info("document removed", zap.String("document_id", id))
	utils.WriteNoContent(w)
}

// HandleSave handles POST /api/v1/knowledge-base/save
func (h *DocumentHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	if err := h.kb.Save(h.savePath); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	stats := h.kb.Stats()
	logger.Info("knowledge base saved",
		zap.String("path", h.savePath),
		zap.Int("documents", stats.Documents))

	if err := utils.WriteOK(w, stats); err != nil {
		logger.Error("failed to write save response", zap.Error(err))
	}
}

// HandleStats handles GET /api/v1/knowledge-base/stats
func (h *DocumentHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.kb.Stats()); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}
