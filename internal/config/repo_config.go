package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/patchlens/internal/core"
)

var (
	ErrRepoConfigNotFound = errors.New("repo config file not found")
	ErrRepoConfigParsing  = errors.New("repo config parsing failed")
)

const repoConfigName = ".patchlens.yml"

// LoadRepoConfig loads and parses the .patchlens.yml file from a repository path.
func LoadRepoConfig(repoPath string) (*core.RepoConfig, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, repoConfigName))
	if err != nil {
		if os.IsNotExist(err) {
			return core.DefaultRepoConfig(), ErrRepoConfigNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", repoConfigName, err)
	}
	return ParseRepoConfig(data)
}

// ParseRepoConfig parses raw .patchlens.yml content, for example fetched
// through the GitHub contents API during a review run.
func ParseRepoConfig(data []byte) (*core.RepoConfig, error) {
	cfg := core.DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepoConfigParsing, err)
	}
	return cfg, nil
}
