package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sevigo/patchlens/internal/chunker"
	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/github"
	"github.com/sevigo/patchlens/internal/kb"
	"github.com/sevigo/patchlens/internal/review"
	"github.com/sevigo/patchlens/internal/storage"
)

// repoConfigPath is the per-repository review configuration file, read from
// the head commit of the pull request.
const repoConfigPath = ".patchlens.yml"

// clientFactory creates a GitHub client for an App installation. Swappable in
// tests.
type clientFactory func(ctx context.Context, cfg *config.Config, installationID int64, logger *slog.Logger) (github.Client, error)

// ReviewJob runs one full pull-request review: fetch the diff, chunk it,
// drive the model conversation, and post the assembled report back.
type ReviewJob struct {
	cfg          *config.Config
	orchestrator *review.Orchestrator
	vectorStore  storage.VectorStore
	newClient    clientFactory
	logger       *slog.Logger
}

// NewReviewJob creates a ReviewJob.
func NewReviewJob(cfg *config.Config, orchestrator *review.Orchestrator, vectorStore storage.VectorStore, logger *slog.Logger) core.Job {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if orchestrator == nil {
		panic("orchestrator cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &ReviewJob{
		cfg:          cfg,
		orchestrator: orchestrator,
		vectorStore:  vectorStore,
		newClient:    github.CreateInstallationClient,
		logger:       logger,
	}
}

// Run executes the review job for a GitHub event.
func (j *ReviewJob) Run(ctx context.Context, event *core.GitHubEvent) error {
	if err := validateEvent(event); err != nil {
		return fmt.Errorf("input validation failed: %w", err)
	}

	j.logger.Info("starting review job", "repo", event.RepoFullName, "pr", event.PRNumber)

	ghClient, err := j.newClient(ctx, j.cfg, event.InstallationID, j.logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	pr, err := ghClient.GetPullRequest(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return fmt.Errorf("failed to get PR details: %w", err)
	}
	if pr.GetHead() == nil || pr.GetHead().GetSHA() == "" {
		return fmt.Errorf("PR %d has no valid head SHA", event.PRNumber)
	}
	event.HeadSHA = pr.GetHead().GetSHA()

	statusUpdater := github.NewStatusUpdater(ghClient)
	checkRunID, err := statusUpdater.InProgress(ctx, event, "Code Review", "Analyzing the pull request diff...")
	if err != nil {
		return fmt.Errorf("failed to set in-progress status: %w", err)
	}

	report, err := j.runReview(ctx, event, ghClient, statusUpdater, checkRunID)
	if err != nil {
		return err
	}
	if report == nil {
		// Nothing reviewable; status already finalized.
		return nil
	}

	split, validErr := j.inlineComments(ctx, event, ghClient, report)
	if validErr != nil {
		j.logger.Warn("could not validate comment lines, posting body only", "error", validErr)
	}

	body := github.RenderReport(report, split.offDiff)
	if err := statusUpdater.PostReport(ctx, event, body, split.comments); err != nil {
		j.updateStatusOnError(ctx, statusUpdater, event, checkRunID, "Failed to post review")
		return fmt.Errorf("failed to post review: %w", err)
	}

	if err := statusUpdater.Completed(ctx, event, checkRunID, "success", "Review Complete", report.Summary); err != nil {
		return fmt.Errorf("failed to update completion status: %w", err)
	}

	j.logger.Info("review job completed", "repo", event.RepoFullName, "pr", event.PRNumber)
	return nil
}

// runReview fetches and chunks the diff and drives the orchestrator. It
// returns a nil report when the pull request has nothing to review.
func (j *ReviewJob) runReview(ctx context.Context, event *core.GitHubEvent, ghClient github.Client, statusUpdater github.StatusUpdater, checkRunID int64) (*core.ReviewReport, error) {
	diff, err := ghClient.GetPullRequestDiff(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		j.updateStatusOnError(ctx, statusUpdater, event, checkRunID, "Failed to fetch the pull request diff")
		return nil, fmt.Errorf("failed to fetch diff: %w", err)
	}

	chunks, err := chunker.New(j.cfg.Review.ChunkBudget, j.cfg.Review.ChunkOverlap).Chunk(diff)
	if err != nil {
		if errors.Is(err, chunker.ErrMalformedDiff) {
			j.updateStatusOnError(ctx, statusUpdater, event, checkRunID, "The pull request diff could not be parsed")
		} else {
			j.updateStatusOnError(ctx, statusUpdater, event, checkRunID, "Failed to prepare the diff for review")
		}
		return nil, fmt.Errorf("failed to chunk diff: %w", err)
	}

	if len(chunks.Chunks) == 0 && len(chunks.BinarySkipped) == 0 {
		j.logger.Info("pull request has no reviewable changes", "repo", event.RepoFullName, "pr", event.PRNumber)
		if err := statusUpdater.Completed(ctx, event, checkRunID, "neutral", "Nothing to Review", "The pull request contains no reviewable changes."); err != nil {
			return nil, fmt.Errorf("failed to update completion status: %w", err)
		}
		return nil, nil
	}

	repoConfig := j.loadRepoConfig(ctx, event, ghClient)
	index := j.knowledgeIndex(event)

	results, runErr := j.orchestrator.Run(ctx, chunks.Chunks, index, repoConfig)
	if runErr != nil && len(results) == 0 {
		j.updateStatusOnError(ctx, statusUpdater, event, checkRunID, "The review could not be completed")
		return nil, fmt.Errorf("review aborted: %w", runErr)
	}
	if runErr != nil {
		// Partial results survive a fatal failure; the report says so.
		j.logger.Warn("review aborted early, posting partial report",
			"reviewed", len(results), "total", len(chunks.Chunks), "error", runErr)
	}

	report := review.Assemble(results, chunks.BinarySkipped)
	if runErr != nil {
		report.Summary += fmt.Sprintf(" The review stopped early after %d of %d portion(s).", len(results), len(chunks.Chunks))
	}
	return report, nil
}

type splitComments struct {
	comments []github.DraftReviewComment
	offDiff  []string
}

// inlineComments filters the report's line comments against the per-file
// patches so only anchorable comments are posted inline.
func (j *ReviewJob) inlineComments(ctx context.Context, event *core.GitHubEvent, ghClient github.Client, report *core.ReviewReport) (splitComments, error) {
	changedFiles, err := ghClient.GetChangedFiles(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return splitComments{}, err
	}

	validLineMaps := make(map[string]map[int]struct{}, len(changedFiles))
	for _, f := range changedFiles {
		if f.Patch == "" {
			continue
		}
		validLineMaps[f.Filename] = github.ParseValidLinesFromPatch(f.Patch, j.logger)
	}

	inline, moved := SplitCommentsByLine(j.logger, report, validLineMaps)
	return splitComments{comments: inline, offDiff: moved}, nil
}

// loadRepoConfig fetches the repository's review configuration from the head
// commit, falling back to defaults when absent or broken.
func (j *ReviewJob) loadRepoConfig(ctx context.Context, event *core.GitHubEvent, ghClient github.Client) *core.RepoConfig {
	data, err := ghClient.GetFileContent(ctx, event.RepoOwner, event.RepoName, repoConfigPath, event.HeadSHA)
	if err != nil {
		j.logger.Debug("no repository config found, using defaults", "repo", event.RepoFullName)
		return core.DefaultRepoConfig()
	}

	repoConfig, err := config.ParseRepoConfig(data)
	if err != nil {
		j.logger.Warn("failed to parse repository config, using defaults",
			"repo", event.RepoFullName, "error", err)
		return core.DefaultRepoConfig()
	}
	return repoConfig
}

// knowledgeIndex returns the retrieval index for the repository, or nil when
// no vector store is wired (reviews then run without repository context).
func (j *ReviewJob) knowledgeIndex(event *core.GitHubEvent) kb.Index {
	if j.vectorStore == nil {
		return nil
	}
	collectionName := kb.CollectionName(event.RepoFullName, j.cfg.AI.EmbedderModelName)
	return kb.NewIndex(j.vectorStore, collectionName, j.cfg.Review.KBQueryMaxChars, j.logger)
}

// updateStatusOnError sends a failure status to GitHub Check Runs.
func (j *ReviewJob) updateStatusOnError(ctx context.Context, statusUpdater github.StatusUpdater, event *core.GitHubEvent, checkRunID int64, message string) {
	if err := statusUpdater.Completed(ctx, event, checkRunID, "failure", "Review Failed", message); err != nil {
		j.logger.Error("failed to update failure status", "error", err)
	}
}
