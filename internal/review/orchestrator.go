// Package review drives the chunk-by-chunk model conversation over a pull
// request diff and assembles the final report.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/kb"
	"github.com/sevigo/patchlens/internal/llm"
	"github.com/sevigo/patchlens/internal/memory"
)

const (
	promptSummaryMax = 400
	replySummaryMax  = 1200
	rawFallbackMax   = 2000
)

// Orchestrator folds over the ordered chunks of one pull request: each chunk
// gets knowledge-base context and the rolling conversation memory, goes to the
// model, and contributes exactly one result. Chunks are reviewed sequentially;
// the memory each chunk sees depends on the replies to the chunks before it.
type Orchestrator struct {
	model     llm.ModelClient
	promptMgr *llm.PromptManager
	provider  llm.ModelProvider
	cfg       *config.Config
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg *config.Config, model llm.ModelClient, promptMgr *llm.PromptManager, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		model:     model,
		promptMgr: promptMgr,
		provider:  llm.ModelProvider(cfg.AI.GeneratorModelName),
		cfg:       cfg,
		logger:    logger,
	}
}

type promptData struct {
	CustomInstructions string
	Memory             string
	Snippets           []core.KnowledgeSnippet
	FilePath           string
	PrecedingContext   string
	ChunkContent       string
}

// Run reviews all chunks in order and returns one result per chunk. The
// returned slice is valid even when err is non-nil: a fatal model error or a
// cancelled context aborts the remaining chunks but keeps everything reviewed
// so far, so a partial report can still be assembled.
func (o *Orchestrator) Run(ctx context.Context, chunks []core.Chunk, index kb.Index, repoConfig *core.RepoConfig) ([]core.ChunkReviewResult, error) {
	if repoConfig == nil {
		repoConfig = core.DefaultRepoConfig()
	}

	mem := memory.New(o.cfg.Review.MemoryBound)
	customInstructions := strings.Join(repoConfig.CustomInstructions, "\n")

	results := make([]core.ChunkReviewResult, 0, len(chunks))

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			o.logger.Info("review cancelled, returning partial results",
				"reviewed", len(results), "total", len(chunks))
			return results, err
		}

		if !chunk.Reviewable() {
			results = append(results, core.ChunkReviewResult{
				ChunkID:  chunk.ID,
				FilePath: chunk.FilePath,
				Summary:  skipReason(chunk),
				Skipped:  true,
			})
			continue
		}

		result, err := o.reviewChunk(ctx, chunk, index, mem, customInstructions)
		if err != nil {
			if llm.IsFatal(err) {
				o.logger.Error("fatal model error, aborting review",
					"chunk", chunk.ID, "error", err)
				return results, err
			}
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			// Chunk-scoped failure: record it and move on.
			o.logger.Warn("chunk review unavailable",
				"chunk", chunk.ID, "file", chunk.FilePath, "error", err)
			results = append(results, core.ChunkReviewResult{
				ChunkID:       chunk.ID,
				FilePath:      chunk.FilePath,
				Unavailable:   true,
				FailureReason: failureReason(err),
			})
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// reviewChunk runs the full per-chunk cycle: retrieve, prompt, call, parse,
// remember.
func (o *Orchestrator) reviewChunk(ctx context.Context, chunk core.Chunk, index kb.Index, mem *memory.Memory, customInstructions string) (core.ChunkReviewResult, error) {
	var snippets []core.KnowledgeSnippet
	if index != nil {
		snippets = index.Query(ctx, chunk.Content, o.cfg.Review.RetrievalK)
	}

	prompt, err := o.promptMgr.Render(llm.ChunkReviewPrompt, o.provider, promptData{
		CustomInstructions: customInstructions,
		Memory:             mem.Render(),
		Snippets:           snippets,
		FilePath:           chunk.FilePath,
		PrecedingContext:   chunk.PrecedingContext,
		ChunkContent:       chunk.Content,
	})
	if err != nil {
		return core.ChunkReviewResult{}, fmt.Errorf("failed to render review prompt: %w", err)
	}

	o.logger.Debug("reviewing chunk",
		"chunk", chunk.ID,
		"file", chunk.FilePath,
		"snippets", len(snippets),
		"memory_entries", mem.Len(),
	)

	reply, err := o.model.Complete(ctx, prompt)
	if err != nil {
		return core.ChunkReviewResult{}, err
	}

	result := core.ChunkReviewResult{
		ChunkID:  chunk.ID,
		FilePath: chunk.FilePath,
	}

	parsed, parseErr := llm.ParseChunkReply(reply)
	if parseErr != nil {
		// The model answered but not in the structured form. Keep the raw
		// text as the summary rather than losing the review entirely.
		o.logger.Warn("model reply was not structured, keeping raw text",
			"chunk", chunk.ID, "error", parseErr)
		result.Summary = memory.Condense(reply, rawFallbackMax)
	} else {
		result.Summary = parsed.Summary
		result.Comments = parsed.Comments
		result.Vulnerabilities = parsed.Vulnerabilities
	}

	mem.Append(core.MemoryEntry{
		ChunkID:       chunk.ID,
		PromptSummary: memory.Condense(chunkDescription(chunk), promptSummaryMax),
		ReplySummary:  memory.Condense(replySummary(result), replySummaryMax),
	})

	return result, nil
}

// chunkDescription is the memory-side stand-in for the full prompt.
func chunkDescription(chunk core.Chunk) string {
	return fmt.Sprintf("Review of %s (lines %d-%d):\n%s",
		chunk.FilePath, chunk.StartLine, chunk.EndLine, chunk.Content)
}

// replySummary is the memory-side stand-in for the full model reply.
func replySummary(result core.ChunkReviewResult) string {
	var b strings.Builder
	b.WriteString(result.Summary)
	for _, c := range result.Comments {
		fmt.Fprintf(&b, "\n- line %d (%s): %s", c.Line, c.Severity, c.Message)
	}
	for _, v := range result.Vulnerabilities {
		fmt.Fprintf(&b, "\n- vulnerability: %s", v)
	}
	return b.String()
}

func skipReason(chunk core.Chunk) string {
	if chunk.RenameOnly {
		return "file was renamed without content changes"
	}
	return "no reviewable content in this portion of the diff"
}

// failureReason maps a model error to the short cause shown in the report.
func failureReason(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "deadline exceeded") {
		return "model call timed out"
	}
	return memory.Condense(msg, 200)
}
