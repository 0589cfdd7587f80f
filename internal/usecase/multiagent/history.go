package multiagent

import (
	"slices"
	"sync"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

// DefaultHistorySize bounds the collaboration log when no size is configured.
const DefaultHistorySize = 100

// History is a bounded, append-only collaboration log. When full, the
// oldest entry is evicted first.
type History struct {
	mu      sync.Mutex
	entries []domain.CollaborationEntry
	max     int
	total   int64 // entries ever appended, evicted ones included
}

// NewHistory creates a log holding at most maxEntries.
func NewHistory(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultHistorySize
	}
	return &History{
		entries: make([]domain.CollaborationEntry, 0, min(maxEntries, 64)),
		max:     maxEntries,
	}
}

// Append adds e, evicting the oldest entry if the log is full.
func (h *History) Append(e domain.CollaborationEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, e)
	h.total++
	if len(h.entries) > h.max {
		h.entries = slices.Delete(h.entries, 0, len(h.entries)-h.max)
	}
}

// Entries returns a copy of the log, oldest first.
func (h *History) Entries() []domain.CollaborationEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries)
}

// Recent returns up to n entries, newest last.
func (h *History) Recent(n int) []domain.CollaborationEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	return slices.Clone(h.entries[len(h.entries)-n:])
}

// Len returns the current number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Cap returns the configured bound.
func (h *History) Cap() int { return h.max }

// Total returns the number of entries ever appended.
func (h *History) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
