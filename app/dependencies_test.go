package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/llm-chat-gateway/config"
	"github.com/upb/llm-chat-gateway/models"
	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/services/cache"
	"github.com/upb/llm-chat-gateway/services/conversation"
	"github.com/upb/llm-chat-gateway/services/embedding"
	"github.com/upb/llm-chat-gateway/services/knowledge"
	"github.com/upb/llm-chat-gateway/services/providers"
)

type stubProvider struct{}

func (stubProvider) Name() string                   { return "openai" }
func (stubProvider) ListModels() []string           { return []string{"gpt-3.5-turbo"} }
func (stubProvider) CountTokens(_, text string) int { return providers.ApproxTokens(text) }

func (stubProvider) ChatCompletion(_ context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: "stub answer", Provider: "openai", Model: req.Model}, nil
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend without providers", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Embedder)
		assert.NotNil(t, deps.KnowledgeBase)
		assert.NotNil(t, deps.Gateway)
		assert.NotNil(t, deps.Truncator)
		assert.NotNil(t, deps.ResponseCache)
		assert.NotNil(t, deps.Pipeline)
		assert.NotNil(t, deps.ChatHandler)
		assert.NotNil(t, deps.DocumentHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.Empty(t, deps.Registry.ListProviders())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("registers configured providers", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.OpenAI.APIKey = "sk-test"
		cfg.Providers.Anthropic.APIKey = "sk-ant-test"
		cfg.Providers.Gemini.APIKey = "gm-test"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.ElementsMatch(t, []string{"openai", "anthropic", "gemini"}, deps.Registry.ListProviders())
		assert.Equal(t, providers.Route{Provider: "openai", Model: "gpt-3.5-turbo"}, deps.Registry.Fallback())
	})

	t.Run("fallback follows default model prefix", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Models.DefaultModel = "claude-2"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Equal(t, providers.Route{Provider: "anthropic", Model: "claude-2"}, deps.Registry.Fallback())
	})

	t.Run("embedding none leaves knowledge base without embedder", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.Provider = embedding.ProviderNone

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Nil(t, deps.Embedder)
		_, err = deps.KnowledgeBase.Search(context.Background(), "anything", 1)
		assert.True(t, services.IsEmbeddingUnavailable(err))
	})

	t.Run("remote embedding without key degrades", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Embedding.Provider = embedding.ProviderOpenAI

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Nil(t, deps.Embedder)
	})

	t.Run("unsatisfiable token budget", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Models.ReservedResponseTokens = cfg.Models.DefaultTokenLimit

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		require.Error(t, err)
		assert.True(t, services.IsBudgetUnsatisfiable(err))
		assert.Contains(t, err.Error(), "failed to initialize pipeline")
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Cache.Backend = "postgres"
		cfg.Database.Host = "127.0.0.1"
		cfg.Database.Port = 1

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize response cache")
	})
}

func TestNewDependencies_KnowledgeBasePersistence(t *testing.T) {
	t.Run("loads saved artifacts", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.KnowledgeBase.Path = filepath.Join(t.TempDir(), "kb")

		seed := knowledge.New(cfg.Embedding.Dimension, embedding.NewHashEmbedder("", cfg.Embedding.Dimension), nil)
		_, err := seed.Add(context.Background(), &models.Document{ID: "fr", Content: "Paris is the capital of France."})
		require.NoError(t, err)
		require.NoError(t, seed.Save(cfg.KnowledgeBase.Path))

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Equal(t, 1, deps.KnowledgeBase.Stats().Documents)
		doc, err := deps.KnowledgeBase.Get("fr")
		require.NoError(t, err)
		assert.Equal(t, "Paris is the capital of France.", doc.Content)
	})

	t.Run("corrupt artifacts fail startup", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.KnowledgeBase.Path = filepath.Join(t.TempDir(), "kb")
		indexPath, recordPath := knowledge.ArtifactPaths(cfg.KnowledgeBase.Path)
		require.NoError(t, os.WriteFile(indexPath, []byte("garbage"), 0o600))
		require.NoError(t, os.WriteFile(recordPath, []byte("{}"), 0o600))

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		require.Error(t, err)
		assert.True(t, services.IsCorruptKnowledgeBase(err))
		assert.Contains(t, err.Error(), "failed to initialize knowledge base")
	})

	t.Run("close saves the knowledge base", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.KnowledgeBase.Path = filepath.Join(t.TempDir(), "kb")

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = deps.KnowledgeBase.Add(context.Background(), &models.Document{ID: "a", Content: "alpha"})
		require.NoError(t, err)
		require.NoError(t, deps.Close(context.Background()))

		assert.True(t, knowledge.Exists(cfg.KnowledgeBase.Path))
	})
}

func TestDependencies_PipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	require.NoError(t, deps.Registry.RegisterProvider(stubProvider{}))

	req := &conversation.Request{NewMessage: "hello"}
	first, err := deps.Pipeline.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "stub answer", first.Text)
	assert.Equal(t, cache.OutcomeGenerated, first.Outcome)

	second, err := deps.Pipeline.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeCached, second.Outcome)
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, deps.Close(ctx))
	// Closing twice must not panic on the sweep channel
	assert.NoError(t, deps.Close(ctx))
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  20 * time.Second,
		},
		Embedding: config.EmbeddingConfig{
			Provider:  embedding.ProviderLocal,
			Dimension: 64,
		},
		KnowledgeBase: config.KnowledgeBaseConfig{
			Enabled: true,
			TopK:    3,
		},
		Models: config.ModelsConfig{
			DefaultModel:           "gpt-3.5-turbo",
			TokenLimits:            config.DefaultTokenLimits(),
			DefaultTokenLimit:      4096,
			ReservedResponseTokens: 1000,
		},
		Generation: config.GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		Cache: config.CacheConfig{
			Backend:    "memory",
			TTL:        time.Hour,
			MaxEntries: 100,
		},
		Retry: config.RetryConfig{
			MaxAttempts:    2,
			BaseDelay:      time.Millisecond,
			MinDelay:       time.Millisecond,
			MaxDelay:       time.Millisecond,
			AttemptTimeout: time.Second,
		},
		Database: config.DatabaseConfig{
			SSLMode:         "disable",
			User:            "gateway",
			Database:        "gateway_test",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}
