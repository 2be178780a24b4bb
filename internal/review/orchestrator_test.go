package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/core"
	"github.com/sevigo/patchlens/internal/llm"
)

// scriptedModel replays a fixed sequence of replies and errors and records
// every prompt it was given.
type scriptedModel struct {
	replies []string
	errs    []error
	prompts []string
}

func (m *scriptedModel) Complete(_ context.Context, prompt string) (string, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	var reply string
	var err error
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return reply, err
}

type stubIndex struct {
	snippets []core.KnowledgeSnippet
	queries  []string
}

func (s *stubIndex) Query(_ context.Context, text string, _ int) []core.KnowledgeSnippet {
	s.queries = append(s.queries, text)
	return s.snippets
}

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			LLMProvider:        "ollama",
			GeneratorModelName: "test-model",
			ModelTimeout:       time.Minute,
		},
		Review: config.ReviewConfig{
			ChunkBudget:     12000,
			ChunkOverlap:    5,
			MemoryBound:     8000,
			RetrievalK:      3,
			KBQueryMaxChars: 2000,
		},
	}
}

func newTestOrchestrator(t *testing.T, model llm.ModelClient) *Orchestrator {
	t.Helper()
	promptMgr, err := llm.NewPromptManager()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(testConfig(), model, promptMgr, logger)
}

func structuredReply(summary string) string {
	return `{"schema_version":1,"summary":"` + summary + `","comments":[],"vulnerabilities":[]}`
}

func threeChunksTwoFiles() []core.Chunk {
	return []core.Chunk{
		{ID: 0, FilePath: "pkg/auth/login.go", StartLine: 10, EndLine: 40, Content: "@@ -10,5 +10,8 @@\n+if err != nil {\n+\treturn err\n+}"},
		{ID: 1, FilePath: "pkg/auth/login.go", StartLine: 80, EndLine: 120, Content: "@@ -80,3 +80,6 @@\n+session.Refresh()"},
		{ID: 2, FilePath: "pkg/auth/token.go", StartLine: 5, EndLine: 25, Content: "@@ -5,2 +5,4 @@\n+token := mint()"},
	}
}

func TestOrchestratorRun(t *testing.T) {
	t.Run("empty diff produces no model calls", func(t *testing.T) {
		model := &scriptedModel{}
		o := newTestOrchestrator(t, model)

		results, err := o.Run(context.Background(), nil, &stubIndex{}, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Empty(t, model.prompts)
	})

	t.Run("every chunk yields exactly one result", func(t *testing.T) {
		model := &scriptedModel{replies: []string{
			structuredReply("adds error handling"),
			structuredReply("refreshes the session"),
			structuredReply("mints a token"),
		}}
		o := newTestOrchestrator(t, model)

		results, err := o.Run(context.Background(), threeChunksTwoFiles(), &stubIndex{}, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "adds error handling", results[0].Summary)
		assert.Equal(t, "refreshes the session", results[1].Summary)
		assert.Equal(t, "mints a token", results[2].Summary)
		assert.Len(t, model.prompts, 3)
	})

	t.Run("timeout on one chunk does not abort the run", func(t *testing.T) {
		model := &scriptedModel{
			replies: []string{structuredReply("first"), "", structuredReply("third")},
			errs:    []error{nil, context.DeadlineExceeded, nil},
		}
		o := newTestOrchestrator(t, model)

		results, err := o.Run(context.Background(), threeChunksTwoFiles(), &stubIndex{}, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.False(t, results[0].Unavailable)
		assert.True(t, results[1].Unavailable)
		assert.Equal(t, "model call timed out", results[1].FailureReason)
		assert.False(t, results[2].Unavailable)
		assert.Len(t, model.prompts, 3, "remaining chunks are still reviewed")
	})

	t.Run("fatal model error aborts with partial results", func(t *testing.T) {
		model := &scriptedModel{
			replies: []string{structuredReply("first"), ""},
			errs:    []error{nil, &llm.FatalError{Err: errors.New("401 unauthorized")}},
		}
		o := newTestOrchestrator(t, model)

		results, err := o.Run(context.Background(), threeChunksTwoFiles(), &stubIndex{}, nil)
		require.Error(t, err)
		assert.True(t, llm.IsFatal(err))
		require.Len(t, results, 1, "only the chunk reviewed before the failure")
		assert.Len(t, model.prompts, 2)
	})

	t.Run("rename-only chunks are skipped without a model call", func(t *testing.T) {
		chunks := []core.Chunk{
			{ID: 0, FilePath: "old.go", RenameOnly: true},
			{ID: 1, FilePath: "new.go", Content: "@@ -1,1 +1,2 @@\n+x := 1"},
		}
		model := &scriptedModel{replies: []string{structuredReply("adds x")}}
		o := newTestOrchestrator(t, model)

		results, err := o.Run(context.Background(), chunks, &stubIndex{}, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.True(t, results[0].Skipped)
		assert.False(t, results[1].Skipped)
		assert.Len(t, model.prompts, 1)
	})

	t.Run("unstructured reply degrades to raw text summary", func(t *testing.T) {
		model := &scriptedModel{replies: []string{"This change looks reasonable to me overall."}}
		chunks := threeChunksTwoFiles()[:1]
		o := newTestOrchestrator(t, model)

		results, err := o.Run(context.Background(), chunks, &stubIndex{}, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "This change looks reasonable to me overall.", results[0].Summary)
		assert.Empty(t, results[0].Comments)
		assert.False(t, results[0].Unavailable)
	})

	t.Run("cancelled context returns partial results", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		model := &scriptedModel{}
		o := newTestOrchestrator(t, model)
		cancel()

		results, err := o.Run(ctx, threeChunksTwoFiles(), &stubIndex{}, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, results)
		assert.Empty(t, model.prompts)
	})
}

func TestOrchestratorPromptComposition(t *testing.T) {
	index := &stubIndex{snippets: []core.KnowledgeSnippet{
		{SourceID: "pkg/auth/session.go:Refresh", Text: "func Refresh() error { ... }", Relevance: 0.9},
		{SourceID: "pkg/auth/store.go:Save", Text: "func Save(s *Session) error { ... }", Relevance: 0.8},
		{SourceID: "pkg/auth/clock.go:Now", Text: "func Now() time.Time { ... }", Relevance: 0.7},
	}}
	model := &scriptedModel{replies: []string{
		structuredReply("adds error handling"),
		structuredReply("refreshes the session"),
	}}
	o := newTestOrchestrator(t, model)

	chunks := threeChunksTwoFiles()[:2]
	_, err := o.Run(context.Background(), chunks, index, &core.RepoConfig{
		CustomInstructions: []string{"Prefer table-driven tests."},
	})
	require.NoError(t, err)
	require.Len(t, model.prompts, 2)

	first := model.prompts[0]
	assert.Contains(t, first, "Prefer table-driven tests.")
	assert.Contains(t, first, "pkg/auth/session.go:Refresh")
	assert.Contains(t, first, "pkg/auth/store.go:Save")
	assert.Contains(t, first, "pkg/auth/clock.go:Now")
	assert.Contains(t, first, chunks[0].Content)
	assert.NotContains(t, first, "Conversation so far", "no memory before the first chunk")

	second := model.prompts[1]
	assert.Contains(t, second, "adds error handling", "memory carries the first reply")
	memoryPos := strings.Index(second, "Conversation so far")
	snippetPos := strings.Index(second, "knowledge base")
	chunkPos := strings.Index(second, chunks[1].Content)
	require.GreaterOrEqual(t, memoryPos, 0)
	require.GreaterOrEqual(t, snippetPos, 0)
	require.GreaterOrEqual(t, chunkPos, 0)
	assert.Less(t, memoryPos, snippetPos, "memory renders before retrieved snippets")
	assert.Less(t, snippetPos, chunkPos, "snippets render before the diff")

	require.Len(t, index.queries, 2)
	assert.Contains(t, index.queries[0], chunks[0].Content)
}
