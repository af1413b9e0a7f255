package session

import "github.com/teslashibe/go-moodcam/pkg/emotions"

// DefaultCapacity is the history length used when none is configured.
const DefaultCapacity = 100

// History is a fixed-capacity ring of observations in arrival order.
// When full, Push evicts the oldest entry. Not safe for concurrent use;
// State guards it.
type History struct {
	buf   []emotions.Observation
	start int
	n     int
}

// NewHistory creates an empty history. A non-positive capacity falls
// back to DefaultCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{buf: make([]emotions.Observation, capacity)}
}

// Push appends obs, evicting the oldest entry when full.
func (h *History) Push(obs emotions.Observation) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = obs
		h.n++
		return
	}
	h.buf[h.start] = obs
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored observations.
func (h *History) Len() int { return h.n }

// Cap returns the maximum number of stored observations.
func (h *History) Cap() int { return len(h.buf) }

// Items returns a copy of the stored observations, oldest first.
func (h *History) Items() []emotions.Observation {
	out := make([]emotions.Observation, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Latest returns the most recently pushed observation.
func (h *History) Latest() (emotions.Observation, bool) {
	if h.n == 0 {
		return emotions.Observation{}, false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)], true
}

// Reset empties the history without shrinking it.
func (h *History) Reset() {
	clear(h.buf)
	h.start, h.n = 0, 0
}
