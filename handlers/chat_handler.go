package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/internal/observability"
	"github.com/upb/llm-chat-gateway/services/conversation"
	"github.com/upb/llm-chat-gateway/utils"
)

// ChatService handles one conversation turn
type ChatService interface {
	Handle(ctx context.Context, req *conversation.Request) (*conversation.Result, error)
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service ChatService
	timeout time.Duration
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler. A zero timeout leaves the
// request context as is.
func NewChatHandler(service ChatService, timeout time.Duration, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger)

	var req conversation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.service.Handle(ctx, &req)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		logger.Error("failed to write chat response", zap.Error(err))
	}
}
