// Package gateway dispatches generation calls to the provider a model name
// routes to, with bounded retry and per-attempt timeouts.
package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/services/providers"
	"github.com/upb/llm-chat-gateway/services/truncation"
)

// Params are the sampling parameters sent with every request
type Params struct {
	Temperature float64
	MaxTokens   int
}

// DefaultParams mirrors the chat defaults: temperature 0.7, 1000 tokens
func DefaultParams() Params {
	return Params{Temperature: 0.7, MaxTokens: 1000}
}

// Config configures a Gateway
type Config struct {
	Policy         RetryPolicy
	AttemptTimeout time.Duration
	Params         Params
}

// Generation is a successful generation result
type Generation struct {
	Text     string
	Provider string
	Model    string
	Attempts int
	Usage    providers.Usage
}

// Gateway is a provider-agnostic generation client. It holds no mutable
// state between calls.
type Gateway struct {
	registry *providers.Registry
	config   Config
	sleep    Sleeper
	logger   *zap.Logger
}

// New creates a gateway over the providers in registry
func New(registry *providers.Registry, config Config, logger *zap.Logger) *Gateway {
	if config.Policy.MaxAttempts < 1 {
		config.Policy.MaxAttempts = 1
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		registry: registry,
		config:   config,
		sleep:    sleep,
		logger:   logger,
	}
}

// WithSleeper replaces the backoff sleeper; tests use it to observe delays
func (g *Gateway) WithSleeper(s Sleeper) *Gateway {
	g.sleep = s
	return g
}

// Route returns where model would be dispatched
func (g *Gateway) Route(model string) (providers.Route, error) {
	_, route, err := g.registry.Resolve(model)
	if err != nil {
		return route, services.NewDomainError(services.ErrorTypeValidation, "model is not served by any configured provider", err).
			WithDetail("model", model)
	}
	return route, nil
}

// TokenCounter returns the token counting scheme of the provider serving model
func (g *Gateway) TokenCounter(model string) truncation.TokenCounter {
	provider, route, err := g.registry.Resolve(model)
	if err != nil {
		return truncation.TokenCounterFunc(providers.ApproxTokens)
	}
	return truncation.TokenCounterFunc(func(text string) int {
		return provider.CountTokens(route.Model, text)
	})
}

// Generate sends transcript to the provider serving model. Transient
// failures and attempt timeouts are retried per the policy; anything else
// fails at once. Every failure is reported as GenerationFailed carrying the
// last cause.
func (g *Gateway) Generate(ctx context.Context, model string, transcript models.Transcript) (*Generation, error) {
	provider, route, err := g.registry.Resolve(model)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "model is not served by any configured provider", err).
			WithDetail("model", model)
	}

	req := &providers.ChatRequest{
		Model:       route.Model,
		Messages:    toProviderMessages(transcript),
		MaxTokens:   g.config.Params.MaxTokens,
		Temperature: g.config.Params.Temperature,
	}

	var (
		lastErr  error
		lastKind ErrorKind
	)
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.config.AttemptTimeout)
		resp, err := provider.ChatCompletion(attemptCtx, req)
		cancel()

		if err == nil {
			if attempt > 1 {
				g.logger.Info("generation succeeded after retry",
					zap.String("provider", route.Provider),
					zap.String("model", route.Model),
					zap.Int("attempts", attempt),
				)
			}
			return &Generation{
				Text:     resp.Content,
				Provider: route.Provider,
				Model:    route.Model,
				Attempts: attempt,
				Usage:    resp.Usage,
			}, nil
		}

		lastKind = Classify(ctx, err)
		lastErr = err
		if lastKind.Retryable() {
			lastErr = services.NewDomainError(services.ErrorTypeTransientProvider, "provider attempt failed", err)
		}

		decision := g.config.Policy.Decide(attempt, lastKind)
		if !decision.Retry {
			g.logger.Error("generation failed",
				zap.String("provider", route.Provider),
				zap.String("model", route.Model),
				zap.Int("attempts", attempt),
				zap.String("error_kind", string(lastKind)),
				zap.Error(err),
			)
			return nil, services.GenerationFailed(attempt, string(lastKind), lastErr)
		}

		g.logger.Warn("generation attempt failed, retrying",
			zap.String("provider", route.Provider),
			zap.Int("attempt", attempt),
			zap.Duration("delay", decision.Delay),
			zap.String("error_kind", string(lastKind)),
			zap.Error(err),
		)

		if err := g.sleep(ctx, decision.Delay); err != nil {
			// keep both the provider cause and the interruption reachable
			return nil, services.GenerationFailed(attempt, string(lastKind), errors.Join(lastErr, err)).
				WithDetail("interrupted", err.Error())
		}
	}
}

func toProviderMessages(transcript models.Transcript) []providers.Message {
	out := make([]providers.Message, len(transcript))
	for i, m := range transcript {
		out[i] = providers.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
