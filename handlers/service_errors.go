package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Provider and internal failures get a generic message; the cause is logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusGatewayTimeout, "The request timed out", nil)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsValidationError(err), services.IsDimensionMismatch(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsEmbeddingUnavailable(err):
		logger.Warn("embedding capability unavailable", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusServiceUnavailable, "Embedding capability is not available", nil)

	case services.IsGenerationFailed(err), services.IsTransientProvider(err):
		logger.Error("generation failed",
			zap.Any("details", details),
			zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, "The language model provider failed to respond", nil)

	case services.IsInternalError(err), services.IsCorruptKnowledgeBase(err), services.IsBudgetUnsatisfiable(err):
		logger.Error("internal server error",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
