// Package gitutil provides the repository cloning used by the knowledge-base
// index command.
package gitutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Cloner clones repositories into temporary directories.
type Cloner struct {
	logger *slog.Logger
}

// NewCloner returns a new Cloner.
func NewCloner(logger *slog.Logger) *Cloner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cloner{logger: logger}
}

// Clone clones repoURL into a temporary directory and optionally checks out
// the given ref. The returned cleanup removes the directory; callers must
// always invoke it.
func (c *Cloner) Clone(ctx context.Context, repoURL, ref, token string) (string, func(), error) {
	authURL, err := authenticatedURL(repoURL, token)
	if err != nil {
		return "", nil, err
	}

	path, err := os.MkdirTemp("", "patchlens-clone-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(path); err != nil {
			c.logger.Warn("failed to remove clone directory", "path", path, "error", err)
		}
	}

	c.logger.Info("cloning repository", "url", repoURL, "path", path)
	repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL: authURL,
	})
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}

	if ref != "" {
		worktree, err := repo.Worktree()
		if err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to get worktree: %w", err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{
			Hash:  plumbing.NewHash(ref),
			Force: true,
		}); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to checkout %s: %w", ref, err)
		}
	}

	return path, cleanup, nil
}

// authenticatedURL injects the token as basic-auth credentials. The token
// never appears in logs; only the bare URL does.
func authenticatedURL(repoURL, token string) (string, error) {
	if token == "" {
		return repoURL, nil
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL %s: %w", repoURL, err)
	}
	parsed.User = url.UserPassword("x-access-token", token)
	return parsed.String(), nil
}
