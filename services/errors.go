package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeEmbeddingUnavailable ErrorType = "embedding_unavailable"
	ErrorTypeDimensionMismatch    ErrorType = "dimension_mismatch"
	ErrorTypeCorruptKnowledgeBase ErrorType = "corrupt_knowledge_base"
	ErrorTypeTransientProvider    ErrorType = "transient_provider"
	ErrorTypeGenerationFailed     ErrorType = "generation_failed"
	ErrorTypeBudgetUnsatisfiable  ErrorType = "budget_unsatisfiable"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeValidation           ErrorType = "validation"
	ErrorTypeInternal             ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. Two domain errors match when their types match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Compare with errors.Is; never mutate them.

var (
	// Knowledge base errors
	ErrEmbeddingUnavailable = NewDomainError(ErrorTypeEmbeddingUnavailable, "embedding capability not configured", nil)
	ErrDimensionMismatch    = NewDomainError(ErrorTypeDimensionMismatch, "vector dimension does not match index dimension", nil)
	ErrCorruptKnowledgeBase = NewDomainError(ErrorTypeCorruptKnowledgeBase, "persisted knowledge base is inconsistent", nil)
	ErrDocumentNotFound     = NewDomainError(ErrorTypeNotFound, "document not found", nil)

	// Generation errors
	ErrTransientProvider = NewDomainError(ErrorTypeTransientProvider, "transient provider failure", nil)
	ErrGenerationFailed  = NewDomainError(ErrorTypeGenerationFailed, "generation failed", nil)

	// Configuration errors
	ErrBudgetUnsatisfiable = NewDomainError(ErrorTypeBudgetUnsatisfiable, "reserved response tokens exceed model ceiling", nil)

	// Validation errors
	ErrInvalidInput  = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyMessage  = NewDomainError(ErrorTypeValidation, "message cannot be empty", nil)
	ErrInvalidModel  = NewDomainError(ErrorTypeValidation, "invalid model specified", nil)
	ErrInvalidTurns  = NewDomainError(ErrorTypeValidation, "system message must be the first message", nil)
	ErrInvalidSearch = NewDomainError(ErrorTypeValidation, "k must be at least 1", nil)

	// Internal errors
	ErrInternal     = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrCacheFailed  = NewDomainError(ErrorTypeInternal, "cache operation failed", nil)
	ErrDatabaseFail = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// Error type checking helper functions

func isType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsEmbeddingUnavailable checks if an error reports a missing embedding capability
func IsEmbeddingUnavailable(err error) bool {
	return isType(err, ErrorTypeEmbeddingUnavailable)
}

// IsDimensionMismatch checks if an error is a dimension mismatch
func IsDimensionMismatch(err error) bool {
	return isType(err, ErrorTypeDimensionMismatch)
}

// IsCorruptKnowledgeBase checks if an error reports inconsistent persisted artifacts
func IsCorruptKnowledgeBase(err error) bool {
	return isType(err, ErrorTypeCorruptKnowledgeBase)
}

// IsTransientProvider checks if an error is a retryable provider failure
func IsTransientProvider(err error) bool {
	return isType(err, ErrorTypeTransientProvider)
}

// IsGenerationFailed checks if an error is a terminal generation failure
func IsGenerationFailed(err error) bool {
	return isType(err, ErrorTypeGenerationFailed)
}

// IsBudgetUnsatisfiable checks if an error is a token budget configuration error
func IsBudgetUnsatisfiable(err error) bool {
	return isType(err, ErrorTypeBudgetUnsatisfiable)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// EmbeddingUnavailable wraps cause as an embedding_unavailable error.
func EmbeddingUnavailable(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeEmbeddingUnavailable, message, cause)
}

// DimensionMismatch reports a vector of the wrong length.
func DimensionMismatch(want, got int) *DomainError {
	return NewDomainError(ErrorTypeDimensionMismatch,
		fmt.Sprintf("expected dimension %d, got %d", want, got), nil).
		WithDetail("expected", want).
		WithDetail("actual", got)
}

// CorruptKnowledgeBase wraps cause as a corrupt_knowledge_base error.
func CorruptKnowledgeBase(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCorruptKnowledgeBase, message, cause)
}

// GenerationFailed reports a terminal generation failure after attempts tries.
// The last underlying cause stays reachable through errors.Unwrap.
func GenerationFailed(attempts int, lastKind string, cause error) *DomainError {
	return NewDomainError(ErrorTypeGenerationFailed, "generation failed", cause).
		WithDetail("attempts", attempts).
		WithDetail("last_error_kind", lastKind)
}

// BudgetUnsatisfiable reports a model whose ceiling cannot fit the reserved response.
func BudgetUnsatisfiable(model string, ceiling, reserved int) *DomainError {
	return NewDomainError(ErrorTypeBudgetUnsatisfiable,
		fmt.Sprintf("model %q ceiling %d does not exceed reserved response tokens %d", model, ceiling, reserved), nil).
		WithDetail("model", model).
		WithDetail("ceiling", ceiling).
		WithDetail("reserved", reserved)
}
