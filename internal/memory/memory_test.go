package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patchlens/internal/core"
)

func entry(id int, prompt, reply string) core.MemoryEntry {
	return core.MemoryEntry{ChunkID: id, PromptSummary: prompt, ReplySummary: reply}
}

func TestMemoryAppendWithinBound(t *testing.T) {
	m := New(100)
	m.Append(entry(0, "first prompt", "first reply"))
	m.Append(entry(1, "second prompt", "second reply"))

	assert.Equal(t, 2, m.Len())
	snapshot := m.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 0, snapshot[0].ChunkID)
	assert.Equal(t, 1, snapshot[1].ChunkID)
}

func TestMemoryEvictsOldestFirst(t *testing.T) {
	// Each entry serializes to 12 characters; the bound fits two.
	m := New(25)
	m.Append(entry(0, "aaaaaa", "bbbbbb"))
	m.Append(entry(1, "cccccc", "dddddd"))
	require.Equal(t, 2, m.Len())

	m.Append(entry(2, "eeeeee", "ffffff"))

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 1, snapshot[0].ChunkID, "the oldest entry must be evicted first")
	assert.Equal(t, 2, snapshot[1].ChunkID)
	assert.LessOrEqual(t, m.Size(), 25)
}

func TestMemoryCondensesOversizedNewestEntry(t *testing.T) {
	m := New(10)
	m.Append(entry(0, "short", "short"))
	m.Append(entry(1, strings.Repeat("x", 50), strings.Repeat("y", 50)))

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, 1, snapshot[0].ChunkID, "the freshest exchange always wins")
	assert.LessOrEqual(t, m.Size(), 10)
}

func TestMemorySizeNeverExceedsBound(t *testing.T) {
	const bound = 40
	m := New(bound)
	entries := []core.MemoryEntry{
		entry(0, "a short prompt", "a short reply"),
		entry(1, strings.Repeat("p", 200), strings.Repeat("r", 200)),
		entry(2, "follow-up", strings.Repeat("z", 90)),
		entry(3, "tiny", "ok"),
	}

	for _, e := range entries {
		m.Append(e)
		assert.LessOrEqual(t, m.Size(), bound)
	}

	snapshot := m.Snapshot()
	require.NotEmpty(t, snapshot)
	assert.Equal(t, 3, snapshot[len(snapshot)-1].ChunkID, "the newest entry is always retained")
}

func TestMemorySnapshotIsACopy(t *testing.T) {
	m := New(100)
	m.Append(entry(0, "prompt", "reply"))

	snapshot := m.Snapshot()
	snapshot[0].PromptSummary = "mutated"

	assert.Equal(t, "prompt", m.Snapshot()[0].PromptSummary)
}

func TestMemoryRender(t *testing.T) {
	m := New(100)
	assert.Empty(t, m.Render())

	m.Append(entry(0, "reviewed login.go", "two issues found"))
	m.Append(entry(1, "reviewed token.go", "looks good"))

	want := "Human: reviewed login.go\nAI: two issues found\nHuman: reviewed token.go\nAI: looks good"
	assert.Equal(t, want, m.Render())
}

func TestCondense(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{
			name: "short text unchanged",
			text: "fits easily",
			max:  100,
			want: "fits easily",
		},
		{
			name: "surrounding whitespace trimmed",
			text: "  padded  ",
			max:  100,
			want: "padded",
		},
		{
			name: "long text truncated with marker",
			text: strings.Repeat("a", 50),
			max:  10,
			want: strings.Repeat("a", 10) + "…",
		},
		{
			name: "cut at line boundary past midpoint",
			text: "first line of text\nsecond line of text\nthird",
			max:  30,
			want: "first line of text…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Condense(tt.text, tt.max))
		})
	}
}
