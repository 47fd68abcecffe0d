package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/config"
	"github.com/upb/llm-chat-gateway/handlers"
	"github.com/upb/llm-chat-gateway/repositories/postgres"
	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/services/cache"
	"github.com/upb/llm-chat-gateway/services/conversation"
	"github.com/upb/llm-chat-gateway/services/embedding"
	"github.com/upb/llm-chat-gateway/services/gateway"
	"github.com/upb/llm-chat-gateway/services/knowledge"
	"github.com/upb/llm-chat-gateway/services/providers"
	"github.com/upb/llm-chat-gateway/services/providers/anthropic"
	"github.com/upb/llm-chat-gateway/services/providers/gemini"
	"github.com/upb/llm-chat-gateway/services/providers/openai"
	"github.com/upb/llm-chat-gateway/services/truncation"
)

const cacheSweepInterval = 5 * time.Minute

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// RepoFactory is set only for the postgres cache backend
	RepoFactory *postgres.RepositoryFactory

	// Services
	Embedder      embedding.Embedder
	KnowledgeBase *knowledge.KnowledgeBase
	Registry      *providers.Registry
	Gateway       *gateway.Gateway
	Truncator     *truncation.Truncator
	ResponseCache *cache.ResponseCache
	Pipeline      *conversation.Pipeline

	// Handlers
	ChatHandler     *handlers.ChatHandler
	DocumentHandler *handlers.DocumentHandler
	HealthHandler   *handlers.HealthHandler

	stopSweep chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		stopSweep: make(chan struct{}),
	}

	if err := deps.initKnowledgeBase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize knowledge base: %w", err)
	}

	if err := deps.initProviders(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initResponseCache(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize response cache: %w", err)
	}

	if err := deps.initPipeline(cfg); err != nil {
		_ = deps.shutdownCache()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initKnowledgeBase builds the embedder and the knowledge base, loading
// persisted artifacts when they exist
func (d *Dependencies) initKnowledgeBase(ctx context.Context, cfg *config.Config) error {
	embedder, err := embedding.New(ctx, embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		APIKey:    embeddingAPIKey(cfg),
		BaseURL:   embeddingBaseURL(cfg),
	})
	switch {
	case services.IsEmbeddingUnavailable(err):
		d.Logger.Warn("embedding capability unavailable, retrieval disabled", zap.Error(err))
		embedder = nil
	case err != nil:
		return err
	}
	if embedder == nil {
		d.Logger.Warn("no embedder configured; search and content-only adds will fail")
	}
	d.Embedder = embedder

	d.KnowledgeBase = knowledge.New(cfg.Embedding.Dimension, embedder, d.Logger)

	if cfg.KnowledgeBase.Path != "" && knowledge.Exists(cfg.KnowledgeBase.Path) {
		if err := d.KnowledgeBase.Load(cfg.KnowledgeBase.Path); err != nil {
			return err
		}
	}

	d.Logger.Info("knowledge base ready",
		zap.String("path", cfg.KnowledgeBase.Path),
		zap.Int("documents", d.KnowledgeBase.Stats().Documents))
	return nil
}

// initProviders registers every provider that has credentials
func (d *Dependencies) initProviders(ctx context.Context, cfg *config.Config) error {
	fallback := providers.Select(cfg.Models.DefaultModel, providers.DefaultRules(),
		providers.Route{Provider: "openai", Model: cfg.Models.DefaultModel})
	registry := providers.NewRegistry(providers.DefaultRules(), fallback)

	// Register OpenAI provider if configured
	if cfg.Providers.OpenAI.APIKey != "" {
		adapter := openai.NewOpenAIAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Providers.OpenAI.Timeout,
		})
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered OpenAI provider")
	}

	if cfg.Providers.Anthropic.APIKey != "" {
		adapter := anthropic.NewAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.Anthropic.APIKey,
			BaseURL: cfg.Providers.Anthropic.BaseURL,
			Timeout: cfg.Providers.Anthropic.Timeout,
		})
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered Anthropic provider")
	}

	if cfg.Providers.Gemini.APIKey != "" {
		adapter, err := gemini.NewAdapter(ctx, providers.ProviderConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			Timeout: cfg.Providers.Gemini.Timeout,
		})
		if err != nil {
			return err
		}
		if err := registry.RegisterProvider(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered Gemini provider")
	}

	if len(registry.ListProviders()) == 0 {
		d.Logger.Warn("no LLM providers configured")
	}

	d.Registry = registry
	return nil
}

// initResponseCache selects the cache store and starts its expiry sweep
func (d *Dependencies) initResponseCache(ctx context.Context, cfg *config.Config) error {
	var store cache.Store

	switch cfg.Cache.Backend {
	case "postgres":
		factory, err := postgres.NewRepositoryFactory(ctx, cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		d.RepoFactory = factory
		repo := factory.NewRepositories().ResponseCache
		store = repo
		go d.sweep(func() {
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if n, err := repo.DeleteExpired(sweepCtx); err != nil {
				d.Logger.Warn("failed to delete expired cache rows", zap.Error(err))
			} else if n > 0 {
				d.Logger.Debug("expired cache rows deleted", zap.Int64("rows", n))
			}
		})
	default:
		mem := cache.NewMemoryStore(cfg.Cache.MaxEntries)
		store = mem
		go mem.StartCleanupWorker(cacheSweepInterval, d.stopSweep)
	}

	d.ResponseCache = cache.New(store, cfg.Cache.TTL, d.Logger)
	d.Logger.Info("response cache ready",
		zap.String("backend", cfg.Cache.Backend),
		zap.Duration("ttl", cfg.Cache.TTL))
	return nil
}

// initPipeline wires truncation, generation and retrieval into a pipeline
func (d *Dependencies) initPipeline(cfg *config.Config) error {
	truncator, err := truncation.New(truncation.Limits{
		Ceilings:       cfg.Models.TokenLimits,
		DefaultCeiling: cfg.Models.DefaultTokenLimit,
		Reserved:       cfg.Models.ReservedResponseTokens,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.Truncator = truncator

	d.Gateway = gateway.New(d.Registry, gateway.Config{
		Policy: gateway.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MinDelay:    cfg.Retry.MinDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		AttemptTimeout: cfg.Retry.AttemptTimeout,
		Params: gateway.Params{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
		},
	}, d.Logger)

	var retriever conversation.Retriever
	if cfg.KnowledgeBase.Enabled {
		retriever = knowledge.NewRetriever(d.KnowledgeBase, cfg.KnowledgeBase.TopK)
	}

	d.Pipeline = conversation.NewPipeline(retriever, d.Truncator, d.ResponseCache, d.Gateway,
		cfg.Models.DefaultModel, d.Logger)
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	var db *sql.DB
	if d.RepoFactory != nil {
		db = d.RepoFactory.DB().DB
	}

	d.ChatHandler = handlers.NewChatHandler(d.Pipeline, cfg.Server.RequestTimeout, d.Logger)
	d.DocumentHandler = handlers.NewDocumentHandler(d.KnowledgeBase, cfg.KnowledgeBase.Path, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(db, d.Registry, d.KnowledgeBase, d.Logger)
}

func (d *Dependencies) sweep(fn func()) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-d.stopSweep:
			return
		}
	}
}

func (d *Dependencies) shutdownCache() error {
	select {
	case <-d.stopSweep:
	default:
		close(d.stopSweep)
	}
	if d.RepoFactory != nil {
		err := d.RepoFactory.Close()
		d.RepoFactory = nil
		return err
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Config.KnowledgeBase.Path != "" && d.KnowledgeBase != nil && d.KnowledgeBase.Len() > 0 {
		if err := d.KnowledgeBase.Save(d.Config.KnowledgeBase.Path); err != nil {
			errs = append(errs, fmt.Errorf("failed to save knowledge base: %w", err))
		} else {
			d.Logger.Info("knowledge base saved", zap.String("path", d.Config.KnowledgeBase.Path))
		}
	}

	if err := d.shutdownCache(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

func embeddingAPIKey(cfg *config.Config) string {
	switch cfg.Embedding.Provider {
	case embedding.ProviderOpenAI:
		return cfg.Providers.OpenAI.APIKey
	case embedding.ProviderGemini:
		return cfg.Providers.Gemini.APIKey
	}
	return ""
}

func embeddingBaseURL(cfg *config.Config) string {
	if cfg.Embedding.Provider == embedding.ProviderOpenAI {
		return cfg.Providers.OpenAI.BaseURL
	}
	return ""
}
