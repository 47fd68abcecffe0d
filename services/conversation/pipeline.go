// Package conversation runs one chat turn: retrieval, prompt assembly,
// truncation and cached generation.
package conversation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/internal/observability"
	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/services/cache"
	"github.com/upb/llm-chat-gateway/services/gateway"
	"github.com/upb/llm-chat-gateway/services/prompt"
	"github.com/upb/llm-chat-gateway/services/providers"
	"github.com/upb/llm-chat-gateway/services/truncation"
)

// Retriever returns documents relevant to a query, best first
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]*models.Document, error)
}

// Generator is the generation capability the pipeline needs
type Generator interface {
	Route(model string) (providers.Route, error)
	Generate(ctx context.Context, model string, transcript models.Transcript) (*gateway.Generation, error)
	TokenCounter(model string) truncation.TokenCounter
}

// Request is one conversation turn
type Request struct {
	Transcript models.Transcript `json:"transcript" validate:"dive"`
	NewMessage string            `json:"new_message" validate:"required"`
	Model      string            `json:"model"`
}

// Result is the outcome of a turn
type Result struct {
	Text      string        `json:"text"`
	Outcome   cache.Outcome `json:"outcome"`
	Model     string        `json:"model"`
	Provider  string        `json:"provider"`
	Retrieved int           `json:"retrieved"`
	Evicted   int           `json:"evicted"`
}

// Pipeline orchestrates a turn. It keeps no state between calls.
type Pipeline struct {
	retriever    Retriever
	truncator    *truncation.Truncator
	cache        *cache.ResponseCache
	generator    Generator
	defaultModel string
	logger       *zap.Logger
}

// NewPipeline wires a pipeline. A nil retriever disables augmentation.
func NewPipeline(
	retriever Retriever,
	truncator *truncation.Truncator,
	responseCache *cache.ResponseCache,
	generator Generator,
	defaultModel string,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		retriever:    retriever,
		truncator:    truncator,
		cache:        responseCache,
		generator:    generator,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Handle processes one turn. Retrieval failures are logged and skipped;
// every other failure is returned as a typed error.
func (p *Pipeline) Handle(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	logger := observability.FromContext(ctx, p.logger)

	if strings.TrimSpace(req.NewMessage) == "" {
		return nil, services.ErrEmptyMessage
	}
	if !req.Transcript.Valid() {
		return nil, services.ErrInvalidTurns
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	route, err := p.generator.Route(model)
	if err != nil {
		return nil, err
	}

	// Step 1: retrieve
	logger.Debug("step 1: retrieving context", zap.String("model", model))
	docs := p.retrieve(ctx, logger, req.NewMessage)

	// Step 2: assemble
	logger.Debug("step 2: assembling prompt", zap.Int("documents", len(docs)))
	var transcript models.Transcript
	if len(docs) > 0 {
		transcript = prompt.Augment(req.Transcript, req.NewMessage, docs)
	} else {
		transcript = prompt.WithDefaultSystem(req.Transcript)
	}

	// Step 3: append the user turn
	transcript = append(transcript, models.User(req.NewMessage))

	// Step 4: truncate to the model's budget
	logger.Debug("step 3: truncating transcript", zap.Int("messages", len(transcript)))
	truncated := p.truncator.Truncate(transcript, route.Model, p.generator.TokenCounter(model))
	transcript = truncated.Transcript

	// Step 5: cached generation
	logger.Debug("step 4: resolving response",
		zap.Int("tokens", truncated.Tokens),
		zap.Int("evicted", truncated.Evicted),
	)
	// keyed on what the caller sent, so turns that differ only in evicted
	// history never share an entry
	var generation *gateway.Generation
	text, outcome, err := p.cache.GetOrGenerate(ctx, route.Model, req.Transcript, req.NewMessage, func(ctx context.Context) (string, error) {
		gen, err := p.generator.Generate(ctx, model, transcript)
		if err != nil {
			return "", err
		}
		generation = gen
		return gen.Text, nil
	})
	if err != nil {
		logger.Error("conversation turn failed",
			zap.String("model", route.Model),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err),
		)
		return nil, err
	}

	result := &Result{
		Text:      text,
		Outcome:   outcome,
		Model:     route.Model,
		Provider:  route.Provider,
		Retrieved: len(docs),
		Evicted:   truncated.Evicted,
	}
	if generation != nil {
		result.Provider = generation.Provider
	}

	logger.Info("conversation turn completed",
		zap.String("model", result.Model),
		zap.String("provider", result.Provider),
		zap.String("outcome", string(outcome)),
		zap.Int("retrieved", result.Retrieved),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}

func (p *Pipeline) retrieve(ctx context.Context, logger *zap.Logger, query string) []*models.Document {
	if p.retriever == nil {
		return nil
	}
	docs, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		logger.Warn("retrieval failed, continuing without context",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err),
		)
		return nil
	}
	for _, f := range prompt.Screen(docs) {
		logger.Warn("retrieved document contains instruction-like text",
			zap.String("document_id", f.DocumentID),
			zap.String("finding", string(f.Type)),
		)
	}
	return docs
}
