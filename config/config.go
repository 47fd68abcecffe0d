package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/upb/llm-chat-gateway/services"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Embedding     EmbeddingConfig
	KnowledgeBase KnowledgeBaseConfig
	Models        ModelsConfig
	Generation    GenerationConfig
	Cache         CacheConfig
	Retry         RetryConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// EmbeddingConfig selects the embedding capability
type EmbeddingConfig struct {
	Provider  string // local, openai, gemini or none
	Model     string
	Dimension int
}

// KnowledgeBaseConfig controls retrieval augmentation
type KnowledgeBaseConfig struct {
	Path    string // artifact base path; loaded at startup when present
	Enabled bool
	TopK    int
}

// ModelsConfig holds per-model token ceilings and the fallback model
type ModelsConfig struct {
	DefaultModel           string
	TokenLimits            map[string]int
	DefaultTokenLimit      int
	ReservedResponseTokens int
	ConfigFile             string
}

// GenerationConfig holds sampling parameters
type GenerationConfig struct {
	Temperature float64
	MaxTokens   int
}

// CacheConfig selects and sizes the response cache
type CacheConfig struct {
	Backend    string // memory or postgres
	TTL        time.Duration
	MaxEntries int
}

// RetryConfig shapes generation retries
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// AnthropicConfig holds Anthropic provider configuration
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// GeminiConfig holds Gemini provider configuration
type GeminiConfig struct {
	APIKey  string
	Timeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// DefaultTokenLimits returns the built-in ceiling table
func DefaultTokenLimits() map[string]int {
	return map[string]int{
		"gpt-3.5-turbo": 4096,
		"gpt-4":         8192,
		"claude-2":      100000,
	}
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	embeddingProvider := strings.ToLower(getEnv("EMBEDDING_PROVIDER", "local"))

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 240*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 210*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  embeddingProvider,
			Model:     getEnv("EMBEDDING_MODEL", defaultEmbeddingModel(embeddingProvider)),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 384),
		},
		KnowledgeBase: KnowledgeBaseConfig{
			Path:    getEnv("KNOWLEDGE_BASE_PATH", ""),
			Enabled: getEnvAsBool("RAG_ENABLED", true),
			TopK:    getEnvAsInt("RAG_TOP_K", 3),
		},
		Models: ModelsConfig{
			DefaultModel:           getEnv("DEFAULT_MODEL", "gpt-3.5-turbo"),
			TokenLimits:            getEnvAsIntMap("MODEL_TOKEN_LIMITS", DefaultTokenLimits()),
			DefaultTokenLimit:      getEnvAsInt("DEFAULT_TOKEN_LIMIT", 4096),
			ReservedResponseTokens: getEnvAsInt("RESERVED_RESPONSE_TOKENS", 1000),
			ConfigFile:             getEnv("MODELS_CONFIG_FILE", ""),
		},
		Generation: GenerationConfig{
			Temperature: getEnvAsFloat("GENERATION_TEMPERATURE", 0.7),
			MaxTokens:   getEnvAsInt("GENERATION_MAX_TOKENS", 1000),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
			TTL:        time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:      getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			MinDelay:       getEnvAsDuration("RETRY_MIN_DELAY", 2*time.Second),
			MaxDelay:       getEnvAsDuration("RETRY_MAX_DELAY", 10*time.Second),
			AttemptTimeout: getEnvAsDuration("GENERATION_ATTEMPT_TIMEOUT", 60*time.Second),
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Anthropic: AnthropicConfig{
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Timeout: getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
			},
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Models.ConfigFile != "" {
		if err := cfg.Models.LoadFile(cfg.Models.ConfigFile); err != nil {
			return nil, err
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	if err := c.Models.Validate(); err != nil {
		return err
	}

	switch c.Embedding.Provider {
	case "local", "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.KnowledgeBase.TopK < 1 {
		return fmt.Errorf("RAG_TOP_K must be at least 1")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Retry.MinDelay > c.Retry.MaxDelay {
		return fmt.Errorf("RETRY_MIN_DELAY %s exceeds RETRY_MAX_DELAY %s", c.Retry.MinDelay, c.Retry.MaxDelay)
	}

	switch c.Cache.Backend {
	case "memory":
	case "postgres":
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}

	// Provider validation (at least one provider API key required in production)
	if c.IsProduction() {
		if c.Providers.OpenAI.APIKey == "" &&
			c.Providers.Anthropic.APIKey == "" &&
			c.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("at least one LLM provider must be configured in production")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Validate reports BudgetUnsatisfiable when the reserved response does not
// fit under some ceiling, the default included.
func (m *ModelsConfig) Validate() error {
	if m.ReservedResponseTokens < 0 {
		return fmt.Errorf("RESERVED_RESPONSE_TOKENS cannot be negative")
	}
	if m.DefaultTokenLimit <= m.ReservedResponseTokens {
		return services.BudgetUnsatisfiable("default", m.DefaultTokenLimit, m.ReservedResponseTokens)
	}
	for model, ceiling := range m.TokenLimits {
		if ceiling <= m.ReservedResponseTokens {
			return services.BudgetUnsatisfiable(model, ceiling, m.ReservedResponseTokens)
		}
	}
	if m.DefaultModel == "" {
		return fmt.Errorf("DEFAULT_MODEL is required")
	}
	return nil
}

// modelsFile is the YAML layout of MODELS_CONFIG_FILE
type modelsFile struct {
	DefaultModel           string `yaml:"default_model"`
	DefaultTokenLimit      int    `yaml:"default_token_limit"`
	ReservedResponseTokens *int   `yaml:"reserved_response_tokens"`
	Models                 []struct {
		Name       string `yaml:"name"`
		TokenLimit int    `yaml:"token_limit"`
	} `yaml:"models"`
}

// LoadFile merges a YAML model table over the current settings. Entries in
// the file replace same-named ceilings; zero values leave settings untouched.
func (m *ModelsConfig) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read models config %s: %w", path, err)
	}

	var file modelsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("failed to parse models config %s: %w", path, err)
	}

	if m.TokenLimits == nil {
		m.TokenLimits = make(map[string]int)
	}
	for _, entry := range file.Models {
		if entry.Name == "" {
			return fmt.Errorf("models config %s: entry without name", path)
		}
		m.TokenLimits[entry.Name] = entry.TokenLimit
	}
	if file.DefaultModel != "" {
		m.DefaultModel = file.DefaultModel
	}
	if file.DefaultTokenLimit > 0 {
		m.DefaultTokenLimit = file.DefaultTokenLimit
	}
	if file.ReservedResponseTokens != nil {
		m.ReservedResponseTokens = *file.ReservedResponseTokens
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "chat"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "openai":
		return "text-embedding-3-small"
	case "gemini":
		return "gemini-embedding-001"
	default:
		return "all-MiniLM-L6-v2"
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsIntMap parses "name=value,name=value". Malformed input yields the default.
func getEnvAsIntMap(key string, defaultValue map[string]int) map[string]int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	out := make(map[string]int)
	for _, pair := range strings.Split(valueStr, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return defaultValue
		}
		value, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return defaultValue
		}
		out[strings.TrimSpace(name)] = value
	}
	return out
}
