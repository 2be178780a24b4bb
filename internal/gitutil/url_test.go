package gitutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePullRequestURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantID    int
		wantErr   bool
	}{
		{
			name:      "Valid HTTPS URL",
			url:       "https://github.com/sevigo/patchlens/pull/123",
			wantOwner: "sevigo",
			wantRepo:  "patchlens",
			wantID:    123,
			wantErr:   false,
		},
		{
			name:      "Valid URL without scheme",
			url:       "github.com/sevigo/patchlens/pull/456",
			wantOwner: "sevigo",
			wantRepo:  "patchlens",
			wantID:    456,
			wantErr:   false,
		},
		{
			name:      "URL with trailing slash",
			url:       "https://github.com/sevigo/patchlens/pull/789/",
			wantOwner: "sevigo",
			wantRepo:  "patchlens",
			wantID:    789,
			wantErr:   false,
		},
		{
			name:    "Invalid PR ID",
			url:     "https://github.com/sevigo/patchlens/pull/abc",
			wantErr: true,
		},
		{
			name:    "Invalid format (missing pull)",
			url:     "https://github.com/sevigo/patchlens/issues/123",
			wantErr: true,
		},
		{
			name:    "Invalid format (too many segments)",
			url:     "https://github.com/sevigo/patchlens/pull/123/files",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, id, err := ParsePullRequestURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantOwner, owner)
				assert.Equal(t, tt.wantRepo, repo)
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{
			name:      "Valid HTTPS URL",
			url:       "https://github.com/sevigo/patchlens",
			wantOwner: "sevigo",
			wantRepo:  "patchlens",
		},
		{
			name:      "URL with .git suffix",
			url:       "https://github.com/sevigo/patchlens.git",
			wantOwner: "sevigo",
			wantRepo:  "patchlens",
		},
		{
			name:      "URL with trailing slash",
			url:       "https://github.com/sevigo/patchlens/",
			wantOwner: "sevigo",
			wantRepo:  "patchlens",
		},
		{
			name:    "Pull request URL is not a repo URL",
			url:     "https://github.com/sevigo/patchlens/pull/123",
			wantErr: true,
		},
		{
			name:    "Not a GitHub URL",
			url:     "https://example.com/sevigo/patchlens",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantOwner, owner)
				assert.Equal(t, tt.wantRepo, repo)
			}
		})
	}
}
