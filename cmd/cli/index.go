package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms/ollama"
	"github.com/sevigo/goframe/parsers"
	"github.com/spf13/cobra"

	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/db"
	"github.com/sevigo/patchlens/internal/gitutil"
	"github.com/sevigo/patchlens/internal/kb"
	"github.com/sevigo/patchlens/internal/llm"
	"github.com/sevigo/patchlens/internal/logger"
	"github.com/sevigo/patchlens/internal/storage"
)

var indexRef string

var indexCmd = &cobra.Command{
	Use:   "index [repo-url]",
	Short: "Build the knowledge base for a repository",
	Long: `Build the knowledge base for a repository.

The index command clones the repository, chunks its source files with
language-aware parsers, and stores the embeddings in Qdrant. Builds are
incremental: unchanged files are skipped on re-runs.

Examples:
  patchlens-cli index https://github.com/owner/repo
  patchlens-cli index --ref 4f2a91c https://github.com/owner/repo`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	indexCmd.Flags().StringVar(&indexRef, "ref", "", "Commit SHA to check out before indexing (defaults to the default branch head)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	repoURL := args[0]

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewLogger(cfg.LoggerConfig, os.Stderr)

	owner, repoName, err := gitutil.ParseRepoURL(repoURL)
	if err != nil {
		return fmt.Errorf("invalid repository URL: %w\n\nExpected format: https://github.com/owner/repo", err)
	}
	collection := kb.CollectionName(owner+"/"+repoName, cfg.AI.EmbedderModelName)

	titleColor.Println("📚 PatchLens - Knowledge Base Index")
	dimColor.Printf("   Repository: %s/%s\n", owner, repoName)
	dimColor.Printf("   Collection: %s\n\n", collection)

	dbConn, dbCleanup, err := db.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbCleanup()
	store := storage.NewStore(dbConn.DB)

	vectorStore, err := buildVectorStore(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to the vector store: %w", err)
	}

	parserRegistry, err := parsers.RegisterLanguagePlugins(log)
	if err != nil {
		return fmt.Errorf("failed to register language parsers: %w", err)
	}

	fmt.Println("Cloning repository...")
	cloner := gitutil.NewCloner(log)
	repoPath, cleanup, err := cloner.Clone(ctx, repoURL, indexRef, resolveToken())
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	defer cleanup()

	repoConfig, err := config.LoadRepoConfig(repoPath)
	if err != nil && !errors.Is(err, config.ErrRepoConfigNotFound) {
		warnColor.Printf("⚠️  Ignoring broken .patchlens.yml: %v\n", err)
	}

	fmt.Println("Indexing repository...")
	builder := kb.NewBuilder(vectorStore, store, parserRegistry, log)
	if err := builder.Build(ctx, collection, repoPath, repoConfig); err != nil {
		return fmt.Errorf("failed to build knowledge base: %w", err)
	}

	successColor.Println("✅ Knowledge base updated.")
	return nil
}

// buildVectorStore connects the Qdrant vector store with an Ollama embedder.
func buildVectorStore(cfg *config.Config, log *slog.Logger) (storage.VectorStore, error) {
	embedderLLM, err := ollama.New(
		ollama.WithServerURL(cfg.AI.OllamaHost),
		ollama.WithModel(cfg.AI.EmbedderModelName),
		ollama.WithHTTPClient(llm.NewOllamaHTTPClient()),
		ollama.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder LLM: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(embedderLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return storage.NewQdrantVectorStore(cfg.AI.QdrantHost, embedder, log), nil
}
