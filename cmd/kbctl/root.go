package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/llm-chat-gateway/config"
	"github.com/upb/llm-chat-gateway/internal/observability"
	"github.com/upb/llm-chat-gateway/services"
	"github.com/upb/llm-chat-gateway/services/embedding"
	"github.com/upb/llm-chat-gateway/services/knowledge"
)

// session is the state shared by every subcommand of one invocation
type session struct {
	path    string
	verbose bool

	kb     *knowledge.KnowledgeBase
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "kbctl",
		Short: "Manage the chat gateway knowledge base",
		Long: `kbctl adds, searches and removes knowledge base documents.
It reads and writes the same artifacts the gateway loads at startup.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&s.path, "kb", "", "knowledge base artifact base path (default $KNOWLEDGE_BASE_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(
		newAddCmd(s),
		newSearchCmd(s),
		newStatsCmd(s),
		newRemoveCmd(s),
	)
	return rootCmd
}

// open loads configuration and the knowledge base at the selected path
func (s *session) open(cmd *cobra.Command) error {
	cfg, err := config.New(cmd.Context())
	if err != nil {
		return err
	}
	if s.path == "" {
		s.path = cfg.KnowledgeBase.Path
	}
	if s.path == "" {
		return errors.New("no knowledge base path: pass --kb or set KNOWLEDGE_BASE_PATH")
	}

	level := "warn"
	if s.verbose {
		level = "debug"
	}
	s.logger, err = observability.NewLogger(level, "text")
	if err != nil {
		return err
	}

	apiKey := ""
	switch cfg.Embedding.Provider {
	case embedding.ProviderOpenAI:
		apiKey = cfg.Providers.OpenAI.APIKey
	case embedding.ProviderGemini:
		apiKey = cfg.Providers.Gemini.APIKey
	}
	embedder, err := embedding.New(cmd.Context(), embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		APIKey:    apiKey,
		BaseURL:   cfg.Providers.OpenAI.BaseURL,
	})
	if err != nil && !services.IsEmbeddingUnavailable(err) {
		return err
	}

	s.kb = knowledge.New(cfg.Embedding.Dimension, embedder, s.logger)
	if knowledge.Exists(s.path) {
		if err := s.kb.Load(s.path); err != nil {
			return fmt.Errorf("load %s: %w", s.path, err)
		}
	}
	return nil
}

func (s *session) save() error {
	if err := s.kb.Save(s.path); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}
