package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

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
)

var (
	verbose    bool
	postReview bool
	useKB      bool
)

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgWhite)
	dimColor     = color.New(color.FgHiBlack)
	boldColor    = color.New(color.Bold)
)

var reviewCmd = &cobra.Command{
	Use:   "review [pr-url]",
	Short: "Review a GitHub Pull Request from the command line",
	Long: `Review a GitHub Pull Request from the command line.

The review command fetches the PR diff, splits it into bounded portions, and
drives the model through them sequentially, carrying a condensed conversation
memory from one portion to the next.

Examples:
  patchlens-cli review https://github.com/owner/repo/pull/123
  patchlens-cli review --kb --post https://github.com/owner/repo/pull/123`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	reviewCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output with timing information")
	reviewCmd.Flags().BoolVar(&postReview, "post", false, "Post the review back to the pull request")
	reviewCmd.Flags().BoolVar(&useKB, "kb", false, "Use the knowledge base built with 'patchlens-cli index'")
	rootCmd.AddCommand(reviewCmd)
}

// stepTimer tracks timing for verbose output
type stepTimer struct {
	stepNum    int
	totalSteps int
	start      time.Time
	verbose    bool
}

func newStepTimer(totalSteps int, verbose bool) *stepTimer {
	return &stepTimer{
		stepNum:    0,
		totalSteps: totalSteps,
		verbose:    verbose,
	}
}

func (t *stepTimer) step(name string) {
	t.stepNum++
	t.start = time.Now()
	if t.verbose {
		titleColor.Printf("\n🔧 Step %d/%d: %s...\n", t.stepNum, t.totalSteps, name)
	} else {
		fmt.Printf("%s...\n", name)
	}
}

func (t *stepTimer) done(details ...string) {
	if t.verbose {
		elapsed := time.Since(t.start).Round(time.Millisecond)
		successColor.Printf("   ✓ Done (%s)\n", elapsed)
		for _, d := range details {
			dimColor.Printf("   └── %s\n", d)
		}
	}
}

func (t *stepTimer) info(format string, args ...any) {
	if t.verbose {
		dimColor.Printf("   ├── "+format+"\n", args...)
	}
}

func runReview(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	prURL := args[0]

	timer := newStepTimer(4, verbose)
	overallStart := time.Now()

	titleColor.Println("🚀 PatchLens - PR Review")
	dimColor.Printf("   Target: %s\n\n", prURL)

	// 1. Load configuration
	timer.step("Loading configuration")
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w\n\nTip: Check that your .env exists and is valid", err)
	}
	log := logger.NewLogger(cfg.LoggerConfig, os.Stderr)
	timer.done()

	// 2. Parse URL and fetch PR metadata
	timer.step("Fetching PR metadata")
	owner, repoName, prNumber, err := gitutil.ParsePullRequestURL(prURL)
	if err != nil {
		return fmt.Errorf("invalid PR URL: %w\n\nExpected format: https://github.com/owner/repo/pull/123", err)
	}

	token := resolveToken()
	if token == "" {
		return fmt.Errorf("GITHUB_TOKEN is not set\n\nTip: Set PL_GITHUB_TOKEN or GITHUB_TOKEN environment variable")
	}
	ghClient := github.NewPATClient(ctx, token, log)

	pr, err := ghClient.GetPullRequest(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch PR: %w\n\nTip: Check that the PR exists and your token has access", err)
	}
	headSHA := pr.GetHead().GetSHA()

	timer.info("PR #%d: %s", pr.GetNumber(), pr.GetTitle())
	timer.info("Head SHA: %s", truncateSHA(headSHA))
	timer.done()

	// 3. Fetch and chunk the diff
	timer.step("Preparing the diff")
	diff, err := ghClient.GetPullRequestDiff(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch diff: %w", err)
	}
	chunks, err := chunker.New(cfg.Review.ChunkBudget, cfg.Review.ChunkOverlap).Chunk(diff)
	if err != nil {
		return fmt.Errorf("failed to chunk diff: %w", err)
	}
	if len(chunks.Chunks) == 0 && len(chunks.BinarySkipped) == 0 {
		successColor.Println("✅ The pull request contains no reviewable changes.")
		return nil
	}
	timer.info("Portions: %d, binary files skipped: %d", len(chunks.Chunks), len(chunks.BinarySkipped))
	timer.done()

	// 4. Generate the review
	timer.step("Generating review")
	orchestrator, err := buildOrchestrator(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize the review pipeline: %w\n\nTip: Check that the LLM service is running", err)
	}

	repoConfig := loadRemoteRepoConfig(ctx, ghClient, owner, repoName, headSHA)
	index := knowledgeIndex(cfg, log, owner, repoName)

	results, runErr := orchestrator.Run(ctx, chunks.Chunks, index, repoConfig)
	if runErr != nil && len(results) == 0 {
		return fmt.Errorf("review aborted: %w", runErr)
	}

	report := review.Assemble(results, chunks.BinarySkipped)
	if runErr != nil {
		warnColor.Printf("⚠️  Review stopped early after %d of %d portion(s): %v\n", len(results), len(chunks.Chunks), runErr)
		report.Summary += fmt.Sprintf(" The review stopped early after %d of %d portion(s).", len(results), len(chunks.Chunks))
	}
	timer.done()

	if verbose {
		dimColor.Printf("\n⏱️  Total time: %s\n", time.Since(overallStart).Round(time.Millisecond))
	}

	printReport(report)

	if postReview {
		return postReport(ctx, ghClient, owner, repoName, prNumber, report, log)
	}
	return nil
}

// buildOrchestrator wires the model client, prompt manager, and orchestrator
// for a one-shot local run.
func buildOrchestrator(ctx context.Context, cfg *config.Config, log *slog.Logger) (*review.Orchestrator, error) {
	model, err := llm.NewGeneratorModel(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	client := llm.NewModelClient(model, cfg.AI.ModelTimeout, cfg.AI.MaxRetries, log)

	promptMgr, err := llm.NewPromptManager()
	if err != nil {
		return nil, err
	}
	return review.NewOrchestrator(cfg, client, promptMgr, log), nil
}

// knowledgeIndex opens the repository's knowledge-base collection, or returns
// nil when retrieval is disabled.
func knowledgeIndex(cfg *config.Config, log *slog.Logger, owner, repoName string) kb.Index {
	if !useKB {
		return nil
	}
	vectorStore, err := buildVectorStore(cfg, log)
	if err != nil {
		warnColor.Printf("⚠️  Knowledge base unavailable, reviewing without repository context: %v\n", err)
		return nil
	}
	collection := kb.CollectionName(owner+"/"+repoName, cfg.AI.EmbedderModelName)
	return kb.NewIndex(vectorStore, collection, cfg.Review.KBQueryMaxChars, log)
}

// loadRemoteRepoConfig reads .patchlens.yml from the PR head, falling back to
// defaults when absent or broken.
func loadRemoteRepoConfig(ctx context.Context, ghClient github.Client, owner, repoName, ref string) *core.RepoConfig {
	data, err := ghClient.GetFileContent(ctx, owner, repoName, ".patchlens.yml", ref)
	if err != nil {
		return core.DefaultRepoConfig()
	}
	repoConfig, err := config.ParseRepoConfig(data)
	if err != nil {
		warnColor.Printf("⚠️  Ignoring broken .patchlens.yml: %v\n", err)
		return core.DefaultRepoConfig()
	}
	return repoConfig
}

// postReport posts the assembled report back as a pull request review,
// anchoring comments to diff lines where possible.
func postReport(ctx context.Context, ghClient github.Client, owner, repoName string, prNumber int, report *core.ReviewReport, log *slog.Logger) error {
	changedFiles, err := ghClient.GetChangedFiles(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("failed to list changed files: %w", err)
	}

	validLineMaps := make(map[string]map[int]struct{}, len(changedFiles))
	for _, f := range changedFiles {
		if f.Patch == "" {
			continue
		}
		validLineMaps[f.Filename] = github.ParseValidLinesFromPatch(f.Patch, log)
	}

	inline, offDiff := jobs.SplitCommentsByLine(log, report, validLineMaps)
	body := github.RenderReport(report, offDiff)

	if err := ghClient.CreateReview(ctx, owner, repoName, prNumber, body, inline); err != nil {
		return fmt.Errorf("failed to post review: %w", err)
	}
	successColor.Println("✅ Review posted.")
	return nil
}

func truncateSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func printReport(report *core.ReviewReport) {
	separator := strings.Repeat("═", 60)
	thinSeparator := strings.Repeat("─", 60)

	fmt.Println()
	titleColor.Println(separator)
	titleColor.Println("📋 REVIEW SUMMARY")
	titleColor.Println(separator)
	fmt.Println()
	infoColor.Println(report.Summary)

	if !report.HasFindings() && len(report.BinarySkipped) == 0 {
		fmt.Println()
		successColor.Println("✅ No issues found!")
		return
	}

	for _, file := range report.Files {
		fmt.Println()
		warnColor.Println(thinSeparator)
		if file.Parts > 1 {
			boldColor.Printf("📄 %s (part %d/%d)\n", file.FilePath, file.Part, file.Parts)
		} else {
			boldColor.Printf("📄 %s\n", file.FilePath)
		}
		warnColor.Println(thinSeparator)

		infoColor.Println(file.Summary)
		for _, c := range file.Comments {
			fmt.Println()
			printSeverityBadge(c.Severity)
			dimColor.Printf(" line %d\n", c.Line)
			infoColor.Printf("%s\n", c.Message)
		}
	}

	if len(report.Vulnerabilities) > 0 {
		fmt.Println()
		warnColor.Println(thinSeparator)
		warnColor.Printf("🔒 POTENTIAL SECURITY ISSUES (%d)\n", len(report.Vulnerabilities))
		warnColor.Println(thinSeparator)
		for _, v := range report.Vulnerabilities {
			infoColor.Printf("  • %s\n", v)
		}
	}

	if len(report.BinarySkipped) > 0 {
		fmt.Println()
		dimColor.Printf("📦 Binary files skipped: %s\n", strings.Join(report.BinarySkipped, ", "))
	}
	fmt.Println()
}

func printSeverityBadge(severity string) {
	switch severity {
	case "critical":
		color.New(color.BgRed, color.FgWhite, color.Bold).Printf(" %s ", severity)
	case "warning":
		color.New(color.BgYellow, color.FgBlack).Printf(" %s ", severity)
	case "info":
		color.New(color.BgGreen, color.FgWhite).Printf(" %s ", severity)
	default:
		color.New(color.BgWhite, color.FgBlack).Printf(" %s ", severity)
	}
}
