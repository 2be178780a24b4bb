// Package chunker splits a pull-request diff into bounded, model-sized chunks
// while preserving file and line provenance.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sevigo/patchlens/internal/core"
)

// ErrMalformedDiff marks diff input the chunker cannot make sense of. A run
// cannot proceed without a valid diff, so callers fail fast on it.
var ErrMalformedDiff = errors.New("malformed diff")

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Result is the outcome of chunking one diff. BinarySkipped lists files whose
// diffs are binary and therefore excluded from review; they surface in the
// final report as "not reviewed" notes instead of chunks.
type Result struct {
	Chunks        []core.Chunk
	BinarySkipped []string
}

// Chunker splits diffs by file first, then by a character budget approximating
// model tokens. Chunking is deterministic and side-effect-free: the same diff
// always yields the same chunk sequence.
type Chunker struct {
	budget  int // max chunk content size in characters
	overlap int // trailing context lines carried into the next chunk of a file
}

// New creates a Chunker. A non-positive budget falls back to a conservative
// default; a negative overlap is treated as zero.
func New(budget, overlap int) *Chunker {
	if budget <= 0 {
		budget = 12000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{budget: budget, overlap: overlap}
}

// Chunk splits a full PR diff into an ordered sequence of chunks. An empty
// diff yields an empty result and no model calls downstream.
func (c *Chunker) Chunk(diff string) (*Result, error) {
	res := &Result{}
	if strings.TrimSpace(diff) == "" {
		return res, nil
	}

	files, err := parseDiff(diff)
	if err != nil {
		return nil, err
	}

	nextID := 0
	for _, f := range files {
		if f.binary {
			res.BinarySkipped = append(res.BinarySkipped, f.path)
			continue
		}
		if len(f.hunks) == 0 {
			// Rename or mode change without content: a zero-content chunk the
			// orchestrator skips without a model call.
			res.Chunks = append(res.Chunks, core.Chunk{
				ID:         nextID,
				FilePath:   f.path,
				RenameOnly: true,
			})
			nextID++
			continue
		}
		for _, ch := range c.chunkFile(f) {
			ch.ID = nextID
			nextID++
			res.Chunks = append(res.Chunks, ch)
		}
	}
	return res, nil
}

// chunkFile packs a file's hunks greedily into chunks within the budget. A
// single hunk larger than the budget is split at line boundaries, never
// mid-line, with trailing context carried into each continuation chunk.
func (c *Chunker) chunkFile(f fileDiff) []core.Chunk {
	var chunks []core.Chunk
	var cur strings.Builder
	curStart, curEnd := 0, 0

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, core.Chunk{
			FilePath:  f.path,
			StartLine: curStart,
			EndLine:   curEnd,
			Content:   strings.TrimSuffix(cur.String(), "\n"),
		})
		cur.Reset()
		curStart, curEnd = 0, 0
	}

	for _, h := range f.hunks {
		block := h.render()
		if len(block) > c.budget {
			flush()
			chunks = append(chunks, c.splitHunk(f.path, h)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(block) > c.budget {
			flush()
		}
		if cur.Len() == 0 {
			curStart = h.newStart
		}
		cur.WriteString(block)
		if end := h.newEnd(); end > curEnd {
			curEnd = end
		}
	}
	flush()

	// Continuation chunks of the same file carry trailing context from their
	// predecessor; model quality degrades sharply on context-free fragments.
	for i := 1; i < len(chunks); i++ {
		chunks[i].PrecedingContext = tailLines(chunks[i-1].Content, c.overlap)
	}
	return chunks
}

// splitHunk breaks one oversized hunk into budget-sized chunks at line
// boundaries. The first piece keeps the hunk header; continuations rely on
// PrecedingContext for orientation.
func (c *Chunker) splitHunk(path string, h hunk) []core.Chunk {
	var chunks []core.Chunk
	var cur strings.Builder
	curStart, curEnd := 0, 0
	first := true

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, core.Chunk{
			FilePath:  path,
			StartLine: curStart,
			EndLine:   curEnd,
			Content:   strings.TrimSuffix(cur.String(), "\n"),
		})
		cur.Reset()
		curStart, curEnd = 0, 0
	}

	for _, dl := range h.lines {
		if first {
			cur.WriteString(h.header)
			cur.WriteString("\n")
			curStart = h.newStart
			first = false
		}
		if cur.Len() > 0 && cur.Len()+len(dl.text)+1 > c.budget {
			flush()
		}
		if curStart == 0 && dl.newLine > 0 {
			curStart = dl.newLine
		}
		cur.WriteString(dl.text)
		cur.WriteString("\n")
		if dl.newLine > curEnd {
			curEnd = dl.newLine
		}
	}
	flush()
	return chunks
}

// tailLines returns the last n lines of s.
func tailLines(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

type diffLine struct {
	text    string
	newLine int // new-file line number, 0 for lines absent from the new file
}

type hunk struct {
	header   string
	newStart int
	lines    []diffLine
}

func (h hunk) render() string {
	var b strings.Builder
	b.WriteString(h.header)
	b.WriteString("\n")
	for _, dl := range h.lines {
		b.WriteString(dl.text)
		b.WriteString("\n")
	}
	return b.String()
}

func (h hunk) newEnd() int {
	end := h.newStart
	for _, dl := range h.lines {
		if dl.newLine > end {
			end = dl.newLine
		}
	}
	return end
}

type fileDiff struct {
	path   string
	binary bool
	hunks  []hunk
}

// parseDiff parses a unified git diff into per-file sections with hunks.
// Anything that does not look like diff output fails the parse: no review is
// possible without valid input.
func parseDiff(diff string) ([]fileDiff, error) {
	var files []fileDiff
	var cur *fileDiff
	var curHunk *hunk
	newLine := 0
	oldRemaining := 0
	newRemaining := 0

	parseCount := func(s string) int {
		if s == "" {
			return 1
		}
		n, _ := strconv.Atoi(s)
		return n
	}

	flushHunk := func() {
		if curHunk != nil && cur != nil {
			cur.hunks = append(cur.hunks, *curHunk)
		}
		curHunk = nil
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
		}
		cur = nil
	}

	for i, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flushFile()
			path, err := parseGitHeaderPath(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDiff, i+1, err)
			}
			cur = &fileDiff{path: path}
			continue
		}

		if cur == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: content outside any file section", ErrMalformedDiff, i+1)
		}

		if strings.HasPrefix(line, "@@") {
			matches := hunkHeaderRegex.FindStringSubmatch(line)
			if matches == nil {
				return nil, fmt.Errorf("%w: line %d: invalid hunk header %q", ErrMalformedDiff, i+1, line)
			}
			flushHunk()
			start, err := strconv.Atoi(matches[3])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid hunk start: %v", ErrMalformedDiff, i+1, err)
			}
			curHunk = &hunk{header: line, newStart: start}
			newLine = start
			oldRemaining = parseCount(matches[2])
			newRemaining = parseCount(matches[4])
			continue
		}

		if curHunk == nil {
			// File header territory between "diff --git" and the first hunk.
			switch {
			case strings.HasPrefix(line, "Binary files "), strings.HasPrefix(line, "GIT binary patch"):
				cur.binary = true
			case strings.HasPrefix(line, "rename to "):
				cur.path = strings.TrimPrefix(line, "rename to ")
			case strings.HasPrefix(line, "+++ b/"):
				cur.path = strings.TrimPrefix(line, "+++ b/")
			case isFileHeaderLine(line):
				// index, ---, mode and similarity lines carry no content.
			default:
				return nil, fmt.Errorf("%w: line %d: unexpected file header line %q", ErrMalformedDiff, i+1, line)
			}
			continue
		}

		// Hunk body.
		switch {
		case strings.HasPrefix(line, "+"):
			curHunk.lines = append(curHunk.lines, diffLine{text: line, newLine: newLine})
			newLine++
			newRemaining--
		case strings.HasPrefix(line, " "):
			curHunk.lines = append(curHunk.lines, diffLine{text: line, newLine: newLine})
			newLine++
			oldRemaining--
			newRemaining--
		case strings.HasPrefix(line, "-"):
			curHunk.lines = append(curHunk.lines, diffLine{text: line})
			oldRemaining--
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file"
			curHunk.lines = append(curHunk.lines, diffLine{text: line})
		case line == "":
			// While the hunk still expects lines, this is an empty context
			// line emitted without its leading space; past that, it is a
			// trailing blank between sections or at end of diff.
			if oldRemaining > 0 || newRemaining > 0 {
				curHunk.lines = append(curHunk.lines, diffLine{text: line, newLine: newLine})
				newLine++
				oldRemaining--
				newRemaining--
			}
		default:
			return nil, fmt.Errorf("%w: line %d: unexpected hunk line %q", ErrMalformedDiff, i+1, line)
		}
	}
	flushFile()
	return files, nil
}

// parseGitHeaderPath extracts the b-side path from "diff --git a/x b/x".
func parseGitHeaderPath(line string) (string, error) {
	parts := strings.Split(line, " ")
	if len(parts) < 4 {
		return "", fmt.Errorf("invalid diff header %q", line)
	}
	return strings.TrimPrefix(parts[3], "b/"), nil
}

// isFileHeaderLine reports whether a line belongs to the extended git header.
func isFileHeaderLine(line string) bool {
	prefixes := []string{
		"index ", "--- ", "new file mode", "deleted file mode",
		"old mode", "new mode", "similarity index", "dissimilarity index",
		"rename from ", "copy from ", "copy to ", "+++ /dev/null",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return strings.TrimSpace(line) == ""
}
