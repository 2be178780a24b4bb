// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/sevigo/patchlens/internal/app"
	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/jobs"
	"github.com/sevigo/patchlens/internal/llm"
	"github.com/sevigo/patchlens/internal/logger"
	"github.com/sevigo/patchlens/internal/review"
	"github.com/sevigo/patchlens/internal/server"
)

// InitializeApp builds the webhook server application.
func InitializeApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	loggerConfig := provideLoggerConfig(cfg)
	logWriter := provideLogWriter(cfg)
	slogLogger := logger.NewLogger(loggerConfig, logWriter)

	generatorModel, err := llm.NewGeneratorModel(ctx, cfg, slogLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator LLM: %w", err)
	}
	modelClient := provideModelClient(generatorModel, cfg, slogLogger)

	promptMgr, err := llm.NewPromptManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}

	orchestrator := review.NewOrchestrator(cfg, modelClient, promptMgr, slogLogger)

	embedder, err := provideEmbedder(cfg, slogLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	vectorStore := provideVectorStore(cfg, embedder, slogLogger)

	reviewJob := jobs.NewReviewJob(cfg, orchestrator, vectorStore, slogLogger)
	maxWorkers := provideMaxWorkers(cfg)
	dispatcher := jobs.NewDispatcher(reviewJob, maxWorkers, slogLogger)

	srv := server.NewServer(ctx, cfg, dispatcher, slogLogger)

	application := app.NewApp(ctx, cfg, srv, dispatcher, slogLogger)
	return application, nil
}
