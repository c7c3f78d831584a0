package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/satindergrewal/ambience/internal/stream"
)

// Recorder captures the live output from a broadcaster into memory.
type Recorder struct {
	b *stream.Broadcaster

	mu      sync.Mutex
	l       *stream.Listener
	pcm     []int16
	done    chan struct{}
	stopped bool
}

// NewRecorder creates a recorder on b. Nothing is captured until Start.
func NewRecorder(b *stream.Broadcaster) *Recorder {
	return &Recorder{b: b}
}

// Start subscribes to the broadcaster and begins capturing frames.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.l != nil {
		return
	}
	r.l = r.b.Subscribe()
	r.done = make(chan struct{})
	go r.capture(r.l, r.done)
}

func (r *Recorder) capture(l *stream.Listener, done chan struct{}) {
	defer close(done)
	for {
		select {
		case frame := <-l.C:
			r.append(frame)
		case <-l.Done():
			// keep what was already delivered
			for {
				select {
				case frame := <-l.C:
					r.append(frame)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) append(frame []int16) {
	r.mu.Lock()
	r.pcm = append(r.pcm, frame...)
	r.mu.Unlock()
}

// Captured returns how many interleaved samples have been captured so far.
func (r *Recorder) Captured() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pcm)
}

// Stop ends the capture and returns the signal. It waits for buffered
// frames to drain until ctx is done.
func (r *Recorder) Stop(ctx context.Context) ([]int16, error) {
	done, ok := r.unsubscribe()
	if !ok {
		return nil, fmt.Errorf("recorder not running")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("stop recorder: %w", ctx.Err())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pcm := r.pcm
	r.pcm = nil
	return pcm, nil
}

// Discard ends the capture and drops everything captured.
func (r *Recorder) Discard() {
	r.unsubscribe()
	r.mu.Lock()
	r.pcm = nil
	r.mu.Unlock()
}

func (r *Recorder) unsubscribe() (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.l == nil || r.stopped {
		return nil, false
	}
	r.stopped = true
	r.b.Unsubscribe(r.l)
	return r.done, true
}
