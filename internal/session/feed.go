package session

import (
	"sync"
	"time"

	"github.com/satindergrewal/ambience/internal/pattern"
)

// VisualEvent is one display notification from a scheduler.
type VisualEvent struct {
	Kind  string        `json:"kind"`
	At    float64       `json:"at"`
	Voice pattern.Voice `json:"voice"`
	Time  time.Time     `json:"time"`
}

// Feed keeps the most recent visual events in a ring. It satisfies
// pattern.Visual and never blocks the caller.
type Feed struct {
	mu     sync.Mutex
	events []VisualEvent
	next   int
	total  int
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 256
	}
	return &Feed{events: make([]VisualEvent, size)}
}

func (f *Feed) Notify(kind string, at float64, voice pattern.Voice) {
	f.mu.Lock()
	f.events[f.next] = VisualEvent{Kind: kind, At: at, Voice: voice, Time: time.Now()}
	f.next = (f.next + 1) % len(f.events)
	f.total++
	f.mu.Unlock()
}

// Recent returns up to n events, oldest first.
func (f *Feed) Recent(n int) []VisualEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	have := min(f.total, len(f.events))
	if n <= 0 || n > have {
		n = have
	}
	out := make([]VisualEvent, n)
	start := f.next - n
	for i := range out {
		out[i] = f.events[(start+i+len(f.events))%len(f.events)]
	}
	return out
}

// Total is how many events have ever been notified.
func (f *Feed) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}
