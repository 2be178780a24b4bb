package main

import (
	"github.com/sevigo/patchlens/internal/core"
)

// Indicates that the review pipeline dependencies have been initialized.
type setupCompleteMsg struct {
	deps *deps
	err  error
}

// Carries the outcome of one review run. rendered is the report markdown
// already rendered for the terminal.
type reviewCompleteMsg struct {
	target   prTarget
	report   *core.ReviewReport
	rendered string
	partial  bool
	err      error
}

// Indicates that the last report was posted back to the pull request.
type reviewPostedMsg struct {
	target prTarget
	err    error
}

// A generic error message for reporting failures from commands.
type errorMsg struct{ err error }

func (e errorMsg) Error() string {
	return e.err.Error()
}
