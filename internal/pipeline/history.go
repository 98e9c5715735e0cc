package pipeline

import (
	"sync"

	"github.com/MrWong99/colloquy/pkg/provider/llm"
)

// DefaultMaxTurns is the number of recent dialogue messages kept in the
// completion window when no explicit limit is configured.
const DefaultMaxTurns = 4

// History holds the recent dialogue turns of a single session. Retention is
// bounded: older turns are dropped as new ones arrive, so a long-running
// session never grows its memory footprint.
//
// Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	maxTurns int
	msgs     []llm.Message
}

// NewHistory creates a History that retains at most maxTurns messages.
// A non-positive maxTurns falls back to DefaultMaxTurns.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// Append adds a turn to the end of the history, dropping the oldest turns
// once the retention limit is exceeded.
func (h *History) Append(role llm.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, llm.Message{Role: role, Content: content})
	if over := len(h.msgs) - h.maxTurns; over > 0 {
		h.msgs = append(h.msgs[:0], h.msgs[over:]...)
	}
}

// Window returns a copy of the most recent maxTurns messages, oldest first.
func (h *History) Window() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := len(h.msgs) - h.maxTurns
	if start < 0 {
		start = 0
	}
	out := make([]llm.Message, len(h.msgs)-start)
	copy(out, h.msgs[start:])
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
