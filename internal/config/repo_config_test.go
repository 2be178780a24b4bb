package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoConfig(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		data := []byte(`
custom_instructions:
  - "Focus on concurrency bugs."
  - "Flag any use of unsafe."
exclude_dirs:
  - generated
exclude_exts:
  - pb.go
`)
		cfg, err := ParseRepoConfig(data)
		require.NoError(t, err)
		assert.Equal(t, []string{"Focus on concurrency bugs.", "Flag any use of unsafe."}, cfg.CustomInstructions)
		assert.Equal(t, []string{"generated"}, cfg.ExcludeDirs)
		assert.Equal(t, []string{"pb.go"}, cfg.ExcludeExts)
	})

	t.Run("empty config keeps defaults", func(t *testing.T) {
		cfg, err := ParseRepoConfig([]byte(""))
		require.NoError(t, err)
		assert.Empty(t, cfg.CustomInstructions)
		assert.Contains(t, cfg.ExcludeDirs, "vendor")
		assert.Contains(t, cfg.ExcludeExts, "lock")
	})

	t.Run("broken yaml", func(t *testing.T) {
		_, err := ParseRepoConfig([]byte("custom_instructions: [unclosed"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRepoConfigParsing)
	})
}

func TestLoadRepoConfig(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadRepoConfig(t.TempDir())
		assert.ErrorIs(t, err, ErrRepoConfigNotFound)
		require.NotNil(t, cfg)
		assert.Contains(t, cfg.ExcludeDirs, "node_modules")
	})

	t.Run("file in repository root", func(t *testing.T) {
		dir := t.TempDir()
		content := []byte("custom_instructions:\n  - \"Prefer table-driven tests.\"\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".patchlens.yml"), content, 0o600))

		cfg, err := LoadRepoConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"Prefer table-driven tests."}, cfg.CustomInstructions)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AI: AIConfig{
				LLMProvider: "ollama",
			},
			Review: ReviewConfig{
				ChunkBudget:     12000,
				ChunkOverlap:    5,
				MemoryBound:     8000,
				RetrievalK:      5,
				KBQueryMaxChars: 2000,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid ollama config",
			mutate: func(c *Config) {},
		},
		{
			name: "gemini requires api key",
			mutate: func(c *Config) {
				c.AI.LLMProvider = "gemini"
			},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name: "gemini with api key",
			mutate: func(c *Config) {
				c.AI.LLMProvider = "gemini"
				c.AI.GeminiAPIKey = "key"
			},
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.AI.LLMProvider = "openai"
			},
			wantErr: "unsupported LLM provider",
		},
		{
			name: "zero chunk budget",
			mutate: func(c *Config) {
				c.Review.ChunkBudget = 0
			},
			wantErr: "CHUNK_BUDGET_CHARS",
		},
		{
			name: "negative overlap",
			mutate: func(c *Config) {
				c.Review.ChunkOverlap = -1
			},
			wantErr: "CHUNK_OVERLAP_LINES",
		},
		{
			name: "zero memory bound",
			mutate: func(c *Config) {
				c.Review.MemoryBound = 0
			},
			wantErr: "MEMORY_BOUND_CHARS",
		},
		{
			name: "negative retries",
			mutate: func(c *Config) {
				c.AI.MaxRetries = -1
			},
			wantErr: "MODEL_MAX_RETRIES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{GitHub: GitHubConfig{}}
	assert.ErrorContains(t, cfg.ValidateServer(), "GITHUB_APP_ID")

	cfg.GitHub.AppID = 42
	assert.ErrorContains(t, cfg.ValidateServer(), "GITHUB_WEBHOOK_SECRET")

	cfg.GitHub.WebhookSecret = "secret"
	assert.NoError(t, cfg.ValidateServer())
}
