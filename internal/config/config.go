// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/patchlens/internal/logger"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string
}

// GitHubConfig holds the GitHub App credentials and the bot identity.
type GitHubConfig struct {
	AppID          int64
	WebhookSecret  string
	PrivateKeyPath string

	// BotUser is the GitHub login whose review requests trigger the bot.
	BotUser string
}

// AIConfig holds the model and retrieval settings.
type AIConfig struct {
	LLMProvider        string
	GeneratorModelName string
	EmbedderModelName  string
	GeminiAPIKey       string
	OllamaHost         string
	QdrantHost         string

	// ModelTimeout bounds a single model invocation; MaxRetries bounds the
	// number of retries on transient failures.
	ModelTimeout time.Duration
	MaxRetries   int
}

// ReviewConfig holds the tunables of the review pipeline itself.
type ReviewConfig struct {
	// ChunkBudget is the maximum chunk size in characters (a cheap
	// approximation of model tokens, roughly 3 chars per token).
	ChunkBudget int

	// ChunkOverlap is the number of trailing lines carried from one chunk of a
	// file into the next as preceding context.
	ChunkOverlap int

	// MemoryBound is the maximum serialized size, in characters, of the
	// conversation memory window.
	MemoryBound int

	// RetrievalK is the number of knowledge-base snippets retrieved per chunk.
	RetrievalK int

	// KBQueryMaxChars truncates the retrieval query to the embedder's input
	// limit; the head of the chunk is kept.
	KBQueryMaxChars int
}

// DBConfig holds the Postgres connection settings for the knowledge-base
// document tracker.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Config holds the application's configuration values.
type Config struct {
	Server       ServerConfig
	GitHub       GitHubConfig
	AI           AIConfig
	Review       ReviewConfig
	Database     *DBConfig
	LoggerConfig logger.Config
	MaxWorkers   int
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("LLM_PROVIDER", "ollama")
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("QDRANT_HOST", "localhost:6334")
	v.SetDefault("GENERATOR_MODEL_NAME", "qwen2.5-coder:latest")
	v.SetDefault("EMBEDDER_MODEL_NAME", "nomic-embed-text")
	v.SetDefault("MODEL_TIMEOUT", "3m")
	v.SetDefault("MODEL_MAX_RETRIES", 2)
	v.SetDefault("MAX_WORKERS", 5)
	v.SetDefault("BOT_USER", "patchlens-bot")
	v.SetDefault("GITHUB_PRIVATE_KEY_PATH", "keys/patchlens-app.private-key.pem")
	v.SetDefault("CHUNK_BUDGET_CHARS", 12000)
	v.SetDefault("CHUNK_OVERLAP_LINES", 5)
	v.SetDefault("MEMORY_BOUND_CHARS", 8000)
	v.SetDefault("RETRIEVAL_K", 5)
	v.SetDefault("KB_QUERY_MAX_CHARS", 2000)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "patchlens")
	v.SetDefault("DB_NAME", "patchlens")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// A missing .env is fine; a broken one is not.
			return nil, fmt.Errorf("failed to read .env file: %w", err)
		}
	}

	// Gemini uses its own default generator model when none is set explicitly.
	generatorModel := v.GetString("GENERATOR_MODEL_NAME")
	if v.GetString("LLM_PROVIDER") == "gemini" && !v.IsSet("GENERATOR_MODEL_NAME") {
		generatorModel = "gemini-2.5-flash"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("SERVER_PORT"),
		},
		GitHub: GitHubConfig{
			AppID:          v.GetInt64("GITHUB_APP_ID"),
			WebhookSecret:  v.GetString("GITHUB_WEBHOOK_SECRET"),
			PrivateKeyPath: v.GetString("GITHUB_PRIVATE_KEY_PATH"),
			BotUser:        v.GetString("BOT_USER"),
		},
		AI: AIConfig{
			LLMProvider:        v.GetString("LLM_PROVIDER"),
			GeneratorModelName: generatorModel,
			EmbedderModelName:  v.GetString("EMBEDDER_MODEL_NAME"),
			GeminiAPIKey:       v.GetString("GEMINI_API_KEY"),
			OllamaHost:         v.GetString("OLLAMA_HOST"),
			QdrantHost:         v.GetString("QDRANT_HOST"),
			ModelTimeout:       v.GetDuration("MODEL_TIMEOUT"),
			MaxRetries:         v.GetInt("MODEL_MAX_RETRIES"),
		},
		Review: ReviewConfig{
			ChunkBudget:     v.GetInt("CHUNK_BUDGET_CHARS"),
			ChunkOverlap:    v.GetInt("CHUNK_OVERLAP_LINES"),
			MemoryBound:     v.GetInt("MEMORY_BOUND_CHARS"),
			RetrievalK:      v.GetInt("RETRIEVAL_K"),
			KBQueryMaxChars: v.GetInt("KB_QUERY_MAX_CHARS"),
		},
		Database: &DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			Username:        v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		LoggerConfig: logger.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		MaxWorkers: v.GetInt("MAX_WORKERS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// failures deep inside a review run.
func (c *Config) Validate() error {
	switch c.AI.LLMProvider {
	case "ollama":
	case "gemini":
		if c.AI.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY must be set for the gemini provider")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.AI.LLMProvider)
	}

	if c.Review.ChunkBudget <= 0 {
		return fmt.Errorf("CHUNK_BUDGET_CHARS must be positive, got %d", c.Review.ChunkBudget)
	}
	if c.Review.ChunkOverlap < 0 {
		return fmt.Errorf("CHUNK_OVERLAP_LINES cannot be negative, got %d", c.Review.ChunkOverlap)
	}
	if c.Review.MemoryBound <= 0 {
		return fmt.Errorf("MEMORY_BOUND_CHARS must be positive, got %d", c.Review.MemoryBound)
	}
	if c.Review.RetrievalK < 0 {
		return fmt.Errorf("RETRIEVAL_K cannot be negative, got %d", c.Review.RetrievalK)
	}
	if c.Review.KBQueryMaxChars <= 0 {
		return fmt.Errorf("KB_QUERY_MAX_CHARS must be positive, got %d", c.Review.KBQueryMaxChars)
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("MODEL_MAX_RETRIES cannot be negative, got %d", c.AI.MaxRetries)
	}
	return nil
}

// ValidateServer checks the additional fields required to run the webhook server.
// The CLI does not need GitHub App credentials, so these are validated separately.
func (c *Config) ValidateServer() error {
	if c.GitHub.AppID == 0 {
		return fmt.Errorf("GITHUB_APP_ID must be set")
	}
	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET must be set")
	}
	return nil
}
