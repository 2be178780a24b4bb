package jobs

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patchlens/internal/core"
)

func reportWith(files ...core.FileReview) *core.ReviewReport {
	return &core.ReviewReport{Files: files}
}

func TestSplitCommentsByLine(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	validFiles := map[string]map[int]struct{}{
		"main.go":     {1: {}, 10: {}, 20: {}},
		"pkg/util.go": {1: {}, 5: {}},
	}

	tests := []struct {
		name        string
		files       []core.FileReview
		wantInline  int
		wantOffDiff int
	}{
		{
			name: "all comments on diff lines",
			files: []core.FileReview{
				{FilePath: "main.go", Comments: []core.LineComment{{Line: 1, Severity: "info", Message: "a"}}},
				{FilePath: "pkg/util.go", Comments: []core.LineComment{{Line: 5, Severity: "warning", Message: "b"}}},
			},
			wantInline:  2,
			wantOffDiff: 0,
		},
		{
			name: "off-diff line moves to general findings",
			files: []core.FileReview{
				{FilePath: "main.go", Comments: []core.LineComment{
					{Line: 1, Severity: "info", Message: "a"},
					{Line: 999, Severity: "critical", Message: "b"},
				}},
			},
			wantInline:  1,
			wantOffDiff: 1,
		},
		{
			name: "unknown file moves to general findings",
			files: []core.FileReview{
				{FilePath: "ghost.go", Comments: []core.LineComment{{Line: 1, Severity: "info", Message: "a"}}},
			},
			wantInline:  0,
			wantOffDiff: 1,
		},
		{
			name: "dot-slash prefix is normalized",
			files: []core.FileReview{
				{FilePath: "./main.go", Comments: []core.LineComment{{Line: 10, Severity: "info", Message: "a"}}},
			},
			wantInline:  1,
			wantOffDiff: 0,
		},
		{
			name: "empty message and zero line are dropped",
			files: []core.FileReview{
				{FilePath: "main.go", Comments: []core.LineComment{
					{Line: 0, Severity: "info", Message: "a"},
					{Line: 1, Severity: "info", Message: "  "},
				}},
			},
			wantInline:  0,
			wantOffDiff: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inline, offDiff := SplitCommentsByLine(logger, reportWith(tt.files...), validFiles)
			assert.Len(t, inline, tt.wantInline)
			assert.Len(t, offDiff, tt.wantOffDiff)
		})
	}

	t.Run("inline comments carry normalized path and formatted body", func(t *testing.T) {
		report := reportWith(core.FileReview{
			FilePath: "./main.go",
			Comments: []core.LineComment{{Line: 20, Severity: "critical", Message: "nil deref"}},
		})

		inline, offDiff := SplitCommentsByLine(logger, report, validFiles)
		require.Len(t, inline, 1)
		assert.Empty(t, offDiff)
		assert.Equal(t, "main.go", inline[0].Path)
		assert.Equal(t, 20, inline[0].Line)
		assert.Contains(t, inline[0].Body, "Critical")
		assert.Contains(t, inline[0].Body, "nil deref")
	})
}

func TestValidateEvent(t *testing.T) {
	valid := func() *core.GitHubEvent {
		return &core.GitHubEvent{
			RepoOwner:      "sevigo",
			RepoName:       "patchlens",
			RepoFullName:   "sevigo/patchlens",
			PRNumber:       7,
			InstallationID: 42,
		}
	}

	assert.NoError(t, validateEvent(valid()))
	assert.Error(t, validateEvent(nil))

	e := valid()
	e.RepoOwner = ""
	assert.Error(t, validateEvent(e))

	e = valid()
	e.PRNumber = 0
	assert.Error(t, validateEvent(e))

	e = valid()
	e.InstallationID = 0
	assert.Error(t, validateEvent(e))
}
