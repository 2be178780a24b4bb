package review

import (
	"fmt"
	"strings"

	"github.com/sevigo/patchlens/internal/core"
)

// Assemble merges the per-chunk results into the final report. It is a pure
// function of its inputs: the same results in the same order always produce
// the same report.
//
// Files is a flat, file-ordered list with one entry per chunk. A file whose
// diff spans several chunks contributes adjacent entries labeled Part n/m, so
// a reader sees both the file grouping and which portion each finding came
// from. Vulnerabilities are deduplicated by exact text, keeping first-seen
// order.
func Assemble(results []core.ChunkReviewResult, binarySkipped []string) *core.ReviewReport {
	report := &core.ReviewReport{
		BinarySkipped: append([]string(nil), binarySkipped...),
	}

	partsPerFile := make(map[string]int, len(results))
	for _, r := range results {
		partsPerFile[r.FilePath]++
	}

	seenVulns := make(map[string]struct{})
	partSoFar := make(map[string]int, len(partsPerFile))
	reviewed := 0
	unavailable := 0
	commentCount := 0

	for _, r := range results {
		partSoFar[r.FilePath]++

		report.Files = append(report.Files, core.FileReview{
			FilePath:    r.FilePath,
			Part:        partSoFar[r.FilePath],
			Parts:       partsPerFile[r.FilePath],
			Summary:     fileSummary(r),
			Comments:    append([]core.LineComment(nil), r.Comments...),
			Unavailable: r.Unavailable,
		})

		switch {
		case r.Unavailable:
			unavailable++
		case !r.Skipped:
			reviewed++
		}
		commentCount += len(r.Comments)

		for _, v := range r.Vulnerabilities {
			if _, ok := seenVulns[v]; ok {
				continue
			}
			seenVulns[v] = struct{}{}
			report.Vulnerabilities = append(report.Vulnerabilities, v)
		}
	}

	report.Summary = headline(len(partsPerFile), reviewed, unavailable, commentCount, len(report.Vulnerabilities), len(binarySkipped))
	report.OverallComment = overallComment(report.Files)
	return report
}

// fileSummary picks the text shown for one file entry.
func fileSummary(r core.ChunkReviewResult) string {
	if r.Unavailable {
		reason := r.FailureReason
		if reason == "" {
			reason = "model call failed"
		}
		return fmt.Sprintf("review unavailable for this portion: %s", reason)
	}
	return r.Summary
}

// headline builds the one-line report summary.
func headline(files, reviewed, unavailable, comments, vulns, binaries int) string {
	if files == 0 {
		if binaries == 0 {
			return "No changes to review."
		}
		return fmt.Sprintf("No reviewable changes; %d binary file(s) skipped.", binaries)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reviewed %d portion(s) across %d file(s)", reviewed, files)
	if comments > 0 {
		fmt.Fprintf(&b, ", %d comment(s)", comments)
	}
	if vulns > 0 {
		fmt.Fprintf(&b, ", %d potential vulnerability(ies)", vulns)
	}
	if unavailable > 0 {
		fmt.Fprintf(&b, "; %d portion(s) could not be reviewed", unavailable)
	}
	if binaries > 0 {
		fmt.Fprintf(&b, "; %d binary file(s) skipped", binaries)
	}
	b.WriteString(".")
	return b.String()
}

// overallComment joins the non-empty file summaries into a readable digest.
func overallComment(files []core.FileReview) string {
	var b strings.Builder
	for _, f := range files {
		if strings.TrimSpace(f.Summary) == "" {
			continue
		}
		label := f.FilePath
		if f.Parts > 1 {
			label = fmt.Sprintf("%s (part %d/%d)", f.FilePath, f.Part, f.Parts)
		}
		fmt.Fprintf(&b, "**%s**: %s\n", label, f.Summary)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
