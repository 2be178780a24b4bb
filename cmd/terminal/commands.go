package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/sevigo/goframe/embeddings"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/patchlens/internal/chunker"
	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/github"
	"github.com/sevigo/patchlens/internal/gitutil"
	"github.com/sevigo/patchlens/internal/jobs"
	"github.com/sevigo/patchlens/internal/kb"
	"github.com/sevigo/patchlens/internal/llm"
	"github.com/sevigo/patchlens/internal/logger"
	"github.com/sevigo/patchlens/internal/review"
	"github.com/sevigo/patchlens/internal/storage"
)

// prTarget identifies one pull request.
type prTarget struct {
	owner  string
	repo   string
	number int
}

func (t prTarget) String() string {
	return fmt.Sprintf("%s/%s#%d", t.owner, t.repo, t.number)
}

// deps bundles the long-lived pipeline components built once at startup.
type deps struct {
	cfg          *config.Config
	log          *slog.Logger
	ghClient     github.Client
	orchestrator *review.Orchestrator
	vectorStore  storage.VectorStore
}

// setupCmd builds the pipeline. Logs go to a file so slog output does not
// corrupt the alternate screen.
func setupCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		cfg, err := config.LoadConfig()
		if err != nil {
			return setupCompleteMsg{err: fmt.Errorf("failed to load config: %w", err)}
		}

		var logWriter io.Writer = io.Discard
		if f, err := os.OpenFile("patchlens-terminal.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600); err == nil {
			logWriter = f
		}
		log := logger.NewLogger(cfg.LoggerConfig, logWriter)

		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			return setupCompleteMsg{err: fmt.Errorf("GITHUB_TOKEN is not set")}
		}
		ghClient := github.NewPATClient(ctx, token, log)

		model, err := llm.NewGeneratorModel(ctx, cfg, log)
		if err != nil {
			return setupCompleteMsg{err: fmt.Errorf("failed to connect to the model: %w", err)}
		}
		client := llm.NewModelClient(model, cfg.AI.ModelTimeout, cfg.AI.MaxRetries, log)

		promptMgr, err := llm.NewPromptManager()
		if err != nil {
			return setupCompleteMsg{err: err}
		}
		orchestrator := review.NewOrchestrator(cfg, client, promptMgr, log)

		// The vector store is optional; reviews run without repository
		// context when Qdrant or the embedder is unreachable.
		var vectorStore storage.VectorStore
		if embedderLLM, err := ollama.New(
			ollama.WithServerURL(cfg.AI.OllamaHost),
			ollama.WithModel(cfg.AI.EmbedderModelName),
			ollama.WithHTTPClient(llm.NewOllamaHTTPClient()),
			ollama.WithLogger(log),
		); err == nil {
			if embedder, err := embeddings.NewEmbedder(embedderLLM); err == nil {
				vectorStore = storage.NewQdrantVectorStore(cfg.AI.QdrantHost, embedder, log)
			}
		}

		return setupCompleteMsg{deps: &deps{
			cfg:          cfg,
			log:          log,
			ghClient:     ghClient,
			orchestrator: orchestrator,
			vectorStore:  vectorStore,
		}}
	}
}

// reviewCmd runs the full review pipeline for one pull request.
func reviewCmd(d *deps, prURL string, useKB bool, width int) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		owner, repoName, prNumber, err := gitutil.ParsePullRequestURL(prURL)
		if err != nil {
			return errorMsg{fmt.Errorf("invalid PR URL: %w", err)}
		}
		target := prTarget{owner: owner, repo: repoName, number: prNumber}

		pr, err := d.ghClient.GetPullRequest(ctx, owner, repoName, prNumber)
		if err != nil {
			return errorMsg{fmt.Errorf("failed to fetch %s: %w", target, err)}
		}
		headSHA := pr.GetHead().GetSHA()

		diff, err := d.ghClient.GetPullRequestDiff(ctx, owner, repoName, prNumber)
		if err != nil {
			return errorMsg{fmt.Errorf("failed to fetch diff: %w", err)}
		}

		chunks, err := chunker.New(d.cfg.Review.ChunkBudget, d.cfg.Review.ChunkOverlap).Chunk(diff)
		if err != nil {
			return errorMsg{fmt.Errorf("failed to chunk diff: %w", err)}
		}
		if len(chunks.Chunks) == 0 && len(chunks.BinarySkipped) == 0 {
			return errorMsg{fmt.Errorf("%s contains no reviewable changes", target)}
		}

		repoConfig := core.DefaultRepoConfig()
		if data, err := d.ghClient.GetFileContent(ctx, owner, repoName, ".patchlens.yml", headSHA); err == nil {
			if parsed, err := config.ParseRepoConfig(data); err == nil {
				repoConfig = parsed
			}
		}

		var index kb.Index
		if useKB && d.vectorStore != nil {
			collection := kb.CollectionName(owner+"/"+repoName, d.cfg.AI.EmbedderModelName)
			index = kb.NewIndex(d.vectorStore, collection, d.cfg.Review.KBQueryMaxChars, d.log)
		}

		results, runErr := d.orchestrator.Run(ctx, chunks.Chunks, index, repoConfig)
		if runErr != nil && len(results) == 0 {
			return errorMsg{fmt.Errorf("review aborted: %w", runErr)}
		}

		report := review.Assemble(results, chunks.BinarySkipped)
		if runErr != nil {
			report.Summary += fmt.Sprintf(" The review stopped early after %d of %d portion(s).", len(results), len(chunks.Chunks))
		}

		rendered, err := renderMarkdown(github.RenderReport(report, nil), width)
		if err != nil {
			return errorMsg{fmt.Errorf("failed to render report: %w", err)}
		}

		return reviewCompleteMsg{
			target:   target,
			report:   report,
			rendered: rendered,
			partial:  runErr != nil,
		}
	}
}

// postCmd posts the last report back to the pull request, anchoring comments
// to diff lines where possible.
func postCmd(d *deps, target prTarget, report *core.ReviewReport) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		changedFiles, err := d.ghClient.GetChangedFiles(ctx, target.owner, target.repo, target.number)
		if err != nil {
			return reviewPostedMsg{target: target, err: err}
		}

		validLineMaps := make(map[string]map[int]struct{}, len(changedFiles))
		for _, f := range changedFiles {
			if f.Patch == "" {
				continue
			}
			validLineMaps[f.Filename] = github.ParseValidLinesFromPatch(f.Patch, d.log)
		}

		inline, offDiff := jobs.SplitCommentsByLine(d.log, report, validLineMaps)
		body := github.RenderReport(report, offDiff)

		err = d.ghClient.CreateReview(ctx, target.owner, target.repo, target.number, body, inline)
		return reviewPostedMsg{target: target, err: err}
	}
}

// renderMarkdown renders the report markdown for the terminal viewport.
func renderMarkdown(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(markdown)
}
