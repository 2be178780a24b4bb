package kb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sevigo/goframe/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVectorStore struct {
	docs      []schema.Document
	err       error
	lastQuery string
	calls     int
}

func (s *stubVectorStore) AddDocuments(_ context.Context, _ string, _ []schema.Document) error {
	return nil
}

func (s *stubVectorStore) SimilaritySearch(_ context.Context, _, query string, _ int) ([]schema.Document, error) {
	s.calls++
	s.lastQuery = query
	return s.docs, s.err
}

func (s *stubVectorStore) DeleteCollection(_ context.Context, _ string) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIndexQuery(t *testing.T) {
	t.Run("maps documents to snippets with store scores", func(t *testing.T) {
		store := &stubVectorStore{
			docs: []schema.Document{
				schema.NewDocument("func Verify() {}", map[string]any{"source": "auth/verify.go", "identifier": "Verify", "score": 0.92}),
				schema.NewDocument("func Login() {}", map[string]any{"source": "auth/login.go", "identifier": "Login", "score": 0.81}),
			},
		}
		idx := NewIndex(store, "kb-test", 2000, discardLogger())

		snippets := idx.Query(context.Background(), "diff --git a/auth/verify.go", 5)

		require.Len(t, snippets, 2)
		assert.Equal(t, "auth/verify.go:Verify", snippets[0].SourceID)
		assert.InDelta(t, 0.92, snippets[0].Relevance, 1e-9)
		assert.Equal(t, "auth/login.go:Login", snippets[1].SourceID)
		assert.GreaterOrEqual(t, snippets[0].Relevance, snippets[1].Relevance)
	})

	t.Run("falls back to rank-derived scores", func(t *testing.T) {
		store := &stubVectorStore{
			docs: []schema.Document{
				schema.NewDocument("first", map[string]any{"source": "a.go"}),
				schema.NewDocument("second", map[string]any{"source": "b.go"}),
				schema.NewDocument("third", map[string]any{"source": "c.go"}),
			},
		}
		idx := NewIndex(store, "kb-test", 2000, discardLogger())

		snippets := idx.Query(context.Background(), "query", 3)

		require.Len(t, snippets, 3)
		assert.Greater(t, snippets[0].Relevance, snippets[1].Relevance)
		assert.Greater(t, snippets[1].Relevance, snippets[2].Relevance)
	})

	t.Run("degrades to empty on store failure", func(t *testing.T) {
		store := &stubVectorStore{err: errors.New("connection refused")}
		idx := NewIndex(store, "kb-test", 2000, discardLogger())

		snippets := idx.Query(context.Background(), "query", 5)

		assert.Empty(t, snippets)
	})

	t.Run("skips empty documents", func(t *testing.T) {
		store := &stubVectorStore{
			docs: []schema.Document{
				schema.NewDocument("   ", map[string]any{"source": "a.go"}),
				schema.NewDocument("real content", map[string]any{"source": "b.go"}),
			},
		}
		idx := NewIndex(store, "kb-test", 2000, discardLogger())

		snippets := idx.Query(context.Background(), "query", 5)

		require.Len(t, snippets, 1)
		assert.Equal(t, "b.go", snippets[0].SourceID)
	})

	t.Run("does not query for blank text or non-positive k", func(t *testing.T) {
		store := &stubVectorStore{}
		idx := NewIndex(store, "kb-test", 2000, discardLogger())

		assert.Empty(t, idx.Query(context.Background(), "  ", 5))
		assert.Empty(t, idx.Query(context.Background(), "query", 0))
		assert.Zero(t, store.calls)
	})

	t.Run("truncates long queries to the head", func(t *testing.T) {
		store := &stubVectorStore{}
		idx := NewIndex(store, "kb-test", 100, discardLogger())

		long := strings.Repeat("line of diff content\n", 50)
		idx.Query(context.Background(), long, 3)

		require.Equal(t, 1, store.calls)
		assert.LessOrEqual(t, len(store.lastQuery), 100)
		assert.True(t, strings.HasPrefix(long, store.lastQuery))
	})
}

func TestHeadTruncate(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "short", headTruncate("short", 100))
	})

	t.Run("cuts at line boundary", func(t *testing.T) {
		text := "first line\nsecond line\nthird line"
		got := headTruncate(text, 25)
		assert.Equal(t, "first line\nsecond line", got)
	})

	t.Run("hard cut without nearby newline", func(t *testing.T) {
		text := strings.Repeat("a", 300)
		assert.Len(t, headTruncate(text, 100), 100)
	})
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name     string
		repo     string
		embedder string
		want     string
	}{
		{
			name:     "standard repo and embedder",
			repo:     "sevigo/patchlens",
			embedder: "nomic-embed-text:latest",
			want:     "kb-sevigo-patchlens-nomic-embed-text",
		},
		{
			name:     "uppercase and special characters",
			repo:     "Org/My.Repo!",
			embedder: "Embedder:v1",
			want:     "kb-org-myrepo-embedder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectionName(tt.repo, tt.embedder))
		})
	}
}
