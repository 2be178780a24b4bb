package github

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sevigo/patchlens/internal/core"
)

func sampleReport() *core.ReviewReport {
	return &core.ReviewReport{
		Summary:        "Reviewed 2 portion(s) across 2 file(s), 2 comment(s).",
		OverallComment: "**a.go**: adds error handling\n**b.go**: refreshes the session",
		Files: []core.FileReview{
			{
				FilePath: "a.go", Part: 1, Parts: 1,
				Summary: "adds error handling",
				Comments: []core.LineComment{
					{Line: 12, Severity: "warning", Message: "error is shadowed"},
				},
			},
			{
				FilePath: "b.go", Part: 1, Parts: 1,
				Summary:     "review unavailable for this portion: model call timed out",
				Unavailable: true,
			},
		},
		Vulnerabilities: []string{"token written to debug log"},
		BinarySkipped:   []string{"logo.png"},
	}
}

func TestRenderReport(t *testing.T) {
	body := RenderReport(sampleReport(), []string{"a.go:99 🟢 **Info**: outside the patch"})

	assert.Contains(t, body, "PatchLens Review")
	assert.Contains(t, body, "Reviewed 2 portion(s)")
	assert.Contains(t, body, "token written to debug log")
	assert.Contains(t, body, "Findings Outside the Diff")
	assert.Contains(t, body, "outside the patch")
	assert.Contains(t, body, "Not Reviewed")
	assert.Contains(t, body, "model call timed out")
	assert.Contains(t, body, "`logo.png`")
}

func TestFormatLineComment(t *testing.T) {
	body := FormatLineComment(core.LineComment{Line: 12, Severity: "warning", Message: "error is shadowed"})
	assert.Equal(t, "🟡 **Warning**: error is shadowed", body)
}

func TestParseValidLinesFromPatch(t *testing.T) {
	patch := "@@ -1,4 +1,6 @@\n context1\n+added1\n+added2\n context2\n-removed\n context3"

	valid := ParseValidLinesFromPatch(patch, nil)

	// New side: 1 context1, 2 added1, 3 added2, 4 context2, 5 context3.
	for _, line := range []int{1, 2, 3, 4, 5} {
		_, ok := valid[line]
		assert.True(t, ok, "line %d should be commentable", line)
	}
	_, ok := valid[6]
	assert.False(t, ok)
}

func TestParseValidLinesFromPatchMalformedHunk(t *testing.T) {
	patch := "@@ not a hunk header @@\n+added"

	valid := ParseValidLinesFromPatch(patch, nil)
	assert.Empty(t, valid)
}
