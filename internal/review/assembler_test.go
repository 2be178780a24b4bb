package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patchlens/internal/core"
)

func TestAssemble(t *testing.T) {
	t.Run("empty input yields an empty report", func(t *testing.T) {
		report := Assemble(nil, nil)
		assert.Empty(t, report.Files)
		assert.Empty(t, report.Vulnerabilities)
		assert.False(t, report.HasFindings())
		assert.Equal(t, "No changes to review.", report.Summary)
	})

	t.Run("multi-chunk files keep one entry per chunk with part labels", func(t *testing.T) {
		results := []core.ChunkReviewResult{
			{ChunkID: 0, FilePath: "a.go", Summary: "first half"},
			{ChunkID: 1, FilePath: "a.go", Summary: "second half"},
			{ChunkID: 2, FilePath: "b.go", Summary: "whole file"},
		}

		report := Assemble(results, nil)
		require.Len(t, report.Files, 3)

		assert.Equal(t, "a.go", report.Files[0].FilePath)
		assert.Equal(t, 1, report.Files[0].Part)
		assert.Equal(t, 2, report.Files[0].Parts)

		assert.Equal(t, "a.go", report.Files[1].FilePath)
		assert.Equal(t, 2, report.Files[1].Part)
		assert.Equal(t, 2, report.Files[1].Parts)

		assert.Equal(t, "b.go", report.Files[2].FilePath)
		assert.Equal(t, 1, report.Files[2].Part)
		assert.Equal(t, 1, report.Files[2].Parts)
	})

	t.Run("unavailable chunk surfaces its failure reason", func(t *testing.T) {
		results := []core.ChunkReviewResult{
			{ChunkID: 0, FilePath: "a.go", Summary: "fine"},
			{ChunkID: 1, FilePath: "b.go", Unavailable: true, FailureReason: "model call timed out"},
		}

		report := Assemble(results, nil)
		require.Len(t, report.Files, 2)
		assert.True(t, report.Files[1].Unavailable)
		assert.Contains(t, report.Files[1].Summary, "model call timed out")
		assert.Contains(t, report.Summary, "could not be reviewed")
	})

	t.Run("vulnerabilities deduplicate by exact text in first-seen order", func(t *testing.T) {
		results := []core.ChunkReviewResult{
			{ChunkID: 0, FilePath: "a.go", Vulnerabilities: []string{"SQL injection in query builder", "hardcoded credential"}},
			{ChunkID: 1, FilePath: "b.go", Vulnerabilities: []string{"SQL injection in query builder", "path traversal in download handler"}},
		}

		report := Assemble(results, nil)
		assert.Equal(t, []string{
			"SQL injection in query builder",
			"hardcoded credential",
			"path traversal in download handler",
		}, report.Vulnerabilities)
		assert.True(t, report.HasFindings())
	})

	t.Run("binary skips are reported", func(t *testing.T) {
		report := Assemble(nil, []string{"logo.png", "data.bin"})
		assert.Equal(t, []string{"logo.png", "data.bin"}, report.BinarySkipped)
		assert.Contains(t, report.Summary, "No reviewable changes")
		assert.Contains(t, report.Summary, "2 binary file(s) skipped")
	})

	t.Run("assembly is deterministic", func(t *testing.T) {
		results := []core.ChunkReviewResult{
			{ChunkID: 0, FilePath: "a.go", Summary: "s1", Comments: []core.LineComment{{Line: 3, Severity: "warning", Message: "m"}}},
			{ChunkID: 1, FilePath: "b.go", Summary: "s2", Vulnerabilities: []string{"v"}},
		}

		first := Assemble(results, []string{"x.bin"})
		second := Assemble(results, []string{"x.bin"})
		assert.Equal(t, first, second)
	})

	t.Run("overall comment labels multi-part files", func(t *testing.T) {
		results := []core.ChunkReviewResult{
			{ChunkID: 0, FilePath: "a.go", Summary: "first half"},
			{ChunkID: 1, FilePath: "a.go", Summary: "second half"},
		}

		report := Assemble(results, nil)
		assert.Contains(t, report.OverallComment, "a.go (part 1/2)")
		assert.Contains(t, report.OverallComment, "a.go (part 2/2)")
	})
}
