// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import "strings"

// Chunk is a bounded unit of pull-request diff content sent to the model in a
// single call. Chunks are non-overlapping, ordered by file and then by position
// within the file; together they cover every changed line of the source diff.
type Chunk struct {
	// ID is the ordinal position of the chunk across the whole diff, starting at 0.
	ID int

	// FilePath is the path of the changed file this chunk belongs to.
	FilePath string

	// StartLine and EndLine bound the new-file line numbers covered by the chunk.
	StartLine int
	EndLine   int

	// Content is the raw diff content of the chunk, including hunk headers.
	Content string

	// PrecedingContext carries the trailing lines of the previous chunk of the
	// same file, so the model never reviews a partial statement without context.
	PrecedingContext string

	// RenameOnly marks a file that was renamed without content changes.
	// Such chunks are skipped without a model call.
	RenameOnly bool
}

// Reviewable reports whether the chunk contains content worth sending to the model.
func (c *Chunk) Reviewable() bool {
	return !c.RenameOnly && strings.TrimSpace(c.Content) != ""
}

// KnowledgeSnippet is a single retrieval result from the knowledge base.
// Snippets are produced read-only by the index and never mutated.
type KnowledgeSnippet struct {
	SourceID  string
	Text      string
	Relevance float64
}

// MemoryEntry records one condensed chunk exchange. Entries are appended
// monotonically during a run and never edited after append.
type MemoryEntry struct {
	ChunkID       int
	PromptSummary string
	ReplySummary  string
}

// SerializedSize is the entry's contribution to the memory bound, measured in
// characters of the condensed summaries.
func (e MemoryEntry) SerializedSize() int {
	return len(e.PromptSummary) + len(e.ReplySummary)
}

// LineComment is a single line-anchored piece of feedback from the model.
type LineComment struct {
	Line     int    `json:"line"`
	Severity string `json:"severity"` // "info", "warning" or "critical"
	Message  string `json:"message"`
}

// ChunkReviewResult is the structured outcome of reviewing one chunk. Exactly
// one result exists per chunk, regardless of skips or failures: a chunk may be
// downgraded but never silently dropped from the report.
type ChunkReviewResult struct {
	ChunkID         int           `json:"chunk_id"`
	FilePath        string        `json:"file_path"`
	Summary         string        `json:"summary"`
	Comments        []LineComment `json:"comments"`
	Vulnerabilities []string      `json:"vulnerabilities"`

	// Skipped marks a chunk with no reviewable content (renames, empty patches).
	Skipped bool `json:"skipped,omitempty"`

	// Unavailable marks a chunk whose model call failed after retries.
	// FailureReason carries the short human-readable cause.
	Unavailable   bool   `json:"unavailable,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// FileReview is one file-level entry of the final report. A file whose diff
// spans several chunks contributes one adjacent entry per chunk, labeled with
// Part/Parts, so the report never loses per-chunk granularity.
type FileReview struct {
	FilePath    string
	Part        int // 1-based index among the file's entries
	Parts       int // total entries for this file
	Summary     string
	Comments    []LineComment
	Unavailable bool
}

// ReviewReport is the terminal output of one review run: the merged, stable
// aggregation of all chunk results. Ownership passes to the posting side once
// assembled.
type ReviewReport struct {
	Summary         string
	OverallComment  string
	Files           []FileReview
	Vulnerabilities []string
	BinarySkipped   []string
}

// HasFindings reports whether any file entry carries comments or the report
// flags vulnerabilities.
func (r *ReviewReport) HasFindings() bool {
	if len(r.Vulnerabilities) > 0 {
		return true
	}
	for _, f := range r.Files {
		if len(f.Comments) > 0 {
			return true
		}
	}
	return false
}
