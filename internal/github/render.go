package github

import (
	"fmt"
	"strings"

	"github.com/sevigo/patchlens/internal/core"
)

// RenderReport formats the final report as the markdown body of the pull
// request review. offDiff carries findings whose lines the patch cannot
// anchor; they are listed in the body instead of being dropped.
func RenderReport(report *core.ReviewReport, offDiff []string) string {
	var sb strings.Builder

	sb.WriteString("### 📝 PatchLens Review\n\n")
	sb.WriteString(report.Summary)
	sb.WriteString("\n")

	if report.OverallComment != "" {
		sb.WriteString("\n")
		sb.WriteString(report.OverallComment)
		sb.WriteString("\n")
	}

	if len(report.Vulnerabilities) > 0 {
		sb.WriteString("\n#### 🔒 Potential Security Issues\n\n")
		for _, v := range report.Vulnerabilities {
			fmt.Fprintf(&sb, "- %s\n", v)
		}
	}

	if len(offDiff) > 0 {
		sb.WriteString("\n#### 🔎 Findings Outside the Diff\n\n")
		for _, f := range offDiff {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	var unavailable []core.FileReview
	for _, f := range report.Files {
		if f.Unavailable {
			unavailable = append(unavailable, f)
		}
	}
	if len(unavailable) > 0 {
		sb.WriteString("\n#### ⚠️ Not Reviewed\n\n")
		for _, f := range unavailable {
			label := f.FilePath
			if f.Parts > 1 {
				label = fmt.Sprintf("%s (part %d/%d)", f.FilePath, f.Part, f.Parts)
			}
			fmt.Fprintf(&sb, "- `%s`: %s\n", label, f.Summary)
		}
	}

	if len(report.BinarySkipped) > 0 {
		sb.WriteString("\n#### 📦 Binary Files Skipped\n\n")
		for _, path := range report.BinarySkipped {
			fmt.Fprintf(&sb, "- `%s`\n", path)
		}
	}

	sb.WriteString("\n> 🤖 *Automated review. Mistakes are possible, please verify critical findings.*\n")
	return sb.String()
}

// FormatLineComment renders one line comment with its severity badge.
func FormatLineComment(c core.LineComment) string {
	return fmt.Sprintf("%s **%s**: %s", severityEmoji(c.Severity), capitalize(c.Severity), c.Message)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// severityEmoji returns the badge for a severity level.
func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "warning":
		return "🟡"
	case "info":
		return "🟢"
	default:
		return "⚪"
	}
}
