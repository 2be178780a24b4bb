package wire

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/wire"
	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/patchlens/internal/app"
	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/jobs"
	"github.com/sevigo/patchlens/internal/llm"
	"github.com/sevigo/patchlens/internal/logger"
	"github.com/sevigo/patchlens/internal/review"
	"github.com/sevigo/patchlens/internal/server"
	"github.com/sevigo/patchlens/internal/storage"
)

// AppSet lists the providers that make up the webhook server. The knowledge
// base builder is wired separately by the CLI, which is the only place that
// writes to the document tracker database.
var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.LoadConfig,
	jobs.NewDispatcher,
	jobs.NewReviewJob,
	llm.NewPromptManager,
	llm.NewGeneratorModel,
	review.NewOrchestrator,
	provideModelClient,
	provideEmbedder,
	provideVectorStore,
	provideMaxWorkers,
	provideSlogLogger,
	provideLoggerConfig,
	provideLogWriter,
)

func provideModelClient(model llms.Model, cfg *config.Config, logger *slog.Logger) llm.ModelClient {
	return llm.NewModelClient(model, cfg.AI.ModelTimeout, cfg.AI.MaxRetries, logger)
}

func provideEmbedder(cfg *config.Config, logger *slog.Logger) (embeddings.Embedder, error) {
	embedderLLM, err := ollama.New(
		ollama.WithServerURL(cfg.AI.OllamaHost),
		ollama.WithModel(cfg.AI.EmbedderModelName),
		ollama.WithHTTPClient(llm.NewOllamaHTTPClient()),
		ollama.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder LLM: %w", err)
	}
	return embeddings.NewEmbedder(embedderLLM)
}

func provideVectorStore(cfg *config.Config, embedder embeddings.Embedder, logger *slog.Logger) storage.VectorStore {
	return storage.NewQdrantVectorStore(cfg.AI.QdrantHost, embedder, logger)
}

func provideMaxWorkers(cfg *config.Config) int {
	return cfg.MaxWorkers
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	return logger.NewLogger(loggerConfig, writer)
}

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.LoggerConfig
}

func provideLogWriter(cfg *config.Config) io.Writer {
	switch cfg.LoggerConfig.Output {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}
