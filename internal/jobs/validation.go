package jobs

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/github"
)

// SplitCommentsByLine partitions the report's line comments into inline draft
// comments, anchored to lines the patch can carry, and off-diff findings that
// go into the review body instead. GitHub rejects a whole review when any
// single comment points at a line outside the diff, so nothing off-diff may
// reach CreateReview.
func SplitCommentsByLine(logger *slog.Logger, report *core.ReviewReport, validLineMaps map[string]map[int]struct{}) ([]github.DraftReviewComment, []string) {
	var inline []github.DraftReviewComment
	var offDiff []string

	for _, f := range report.Files {
		cleanPath := strings.TrimPrefix(f.FilePath, "./")
		lines, fileKnown := validLineMaps[cleanPath]

		for _, c := range f.Comments {
			if c.Line <= 0 || strings.TrimSpace(c.Message) == "" {
				continue
			}

			if !fileKnown {
				logger.Warn("moving comment to general findings (file not in diff)",
					"file", f.FilePath, "line", c.Line)
				offDiff = append(offDiff, offDiffFinding(cleanPath, c))
				continue
			}

			if _, ok := lines[c.Line]; ok {
				inline = append(inline, github.DraftReviewComment{
					Path: cleanPath,
					Line: c.Line,
					Body: github.FormatLineComment(c),
				})
			} else {
				logger.Warn("moving comment to general findings (off-diff line)",
					"file", f.FilePath, "line", c.Line)
				offDiff = append(offDiff, offDiffFinding(cleanPath, c))
			}
		}
	}
	return inline, offDiff
}

func offDiffFinding(path string, c core.LineComment) string {
	return fmt.Sprintf("`%s:%d` %s", path, c.Line, github.FormatLineComment(c))
}

// validateEvent ensures the event contains all the fields a review job needs.
func validateEvent(event *core.GitHubEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.RepoOwner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if event.RepoName == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if event.RepoFullName == "" {
		return fmt.Errorf("repository full name cannot be empty")
	}
	if event.PRNumber <= 0 {
		return fmt.Errorf("pull request number must be positive, got: %d", event.PRNumber)
	}
	if event.InstallationID <= 0 {
		return fmt.Errorf("installation ID must be positive, got: %d", event.InstallationID)
	}
	return nil
}
