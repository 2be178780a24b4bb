// Package memory implements the bounded rolling conversation history that
// keeps multi-chunk reviews coherent.
package memory

import (
	"strings"

	"github.com/sevigo/patchlens/internal/core"
)

// Memory is an ordered, size-bounded log of prior chunk exchanges. The bound
// is expressed as a maximum total serialized size in characters rather than an
// entry count, because entries vary widely in length. Once the bound is
// exceeded, the oldest entries are evicted first, so the most recent exchanges
// are always retained.
//
// A Memory instance is owned by exactly one orchestration run and mutated only
// from that run's control goroutine; it must never be shared across runs.
type Memory struct {
	maxChars int
	entries  []core.MemoryEntry
	size     int
}

// New creates a Memory bounded to maxChars of serialized entries.
func New(maxChars int) *Memory {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Memory{maxChars: maxChars}
}

// Append adds an entry to the newest end, evicting from the oldest end until
// the bound is satisfied. Entries are never mutated after append. An entry
// larger than the whole bound evicts everything else and is condensed to fit,
// so the freshest exchange always wins and the window never exceeds the
// bound.
func (m *Memory) Append(entry core.MemoryEntry) {
	entry = m.clamp(entry)
	m.entries = append(m.entries, entry)
	m.size += entry.SerializedSize()
	m.evict()
}

// clamp condenses an oversized entry so that no single exchange can exceed
// the bound on its own. The prompt summary keeps at most half the budget; the
// reply summary takes whatever remains.
func (m *Memory) clamp(entry core.MemoryEntry) core.MemoryEntry {
	if entry.SerializedSize() <= m.maxChars {
		return entry
	}
	promptMax := m.maxChars / 2
	if len(entry.PromptSummary) > promptMax {
		entry.PromptSummary = Condense(entry.PromptSummary, max(0, promptMax-len(condenseMarker)))
	}
	replyMax := m.maxChars - len(entry.PromptSummary)
	if len(entry.ReplySummary) > replyMax {
		entry.ReplySummary = Condense(entry.ReplySummary, max(0, replyMax-len(condenseMarker)))
	}
	return entry
}

// evict drops oldest entries while the serialized size exceeds the bound,
// always retaining at least the newest entry.
func (m *Memory) evict() {
	for m.size > m.maxChars && len(m.entries) > 1 {
		m.size -= m.entries[0].SerializedSize()
		m.entries = m.entries[1:]
	}
}

// Snapshot returns a copy of the current window, oldest first. Because entries
// are immutable and appends are monotonic, snapshots taken at different points
// of a run agree on their shared prefix modulo eviction, which makes them safe
// to log and assert on.
func (m *Memory) Snapshot() []core.MemoryEntry {
	out := make([]core.MemoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of retained entries.
func (m *Memory) Len() int { return len(m.entries) }

// Size returns the serialized size of the retained window in characters.
func (m *Memory) Size() int { return m.size }

// Render formats the current window for inclusion in a prompt.
func (m *Memory) Render() string {
	if len(m.entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString("Human: ")
		b.WriteString(e.PromptSummary)
		b.WriteString("\nAI: ")
		b.WriteString(e.ReplySummary)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// condenseMarker terminates truncated text. Its length counts toward any size
// budget the caller is working against.
const condenseMarker = "…"

// Condense truncates text to at most max characters at a line boundary where
// possible, for building memory entries that respect the size bound.
func Condense(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, '\n'); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + condenseMarker
}
