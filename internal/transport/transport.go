package transport

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Callback is invoked with the logical time (seconds) the event was due at.
// Callbacks run with the dispatch lock held: they may schedule further work
// but must not call Cancel, CancelAll, Pause or Stop.
type Callback func(at float64)

// Handle identifies scheduled work on a Transport.
type Handle struct {
	t         *Transport
	cancelled bool // guarded by t.mu
}

// Cancel discards the work behind h. Once Cancel returns no callback from
// h fires, even if it was already due. Safe to call more than once.
func (h *Handle) Cancel() {
	if h == nil || h.t == nil {
		return
	}
	h.t.fireMu.Lock()
	h.t.mu.Lock()
	h.cancelled = true
	h.t.mu.Unlock()
	h.t.fireMu.Unlock()
}

// Cancelled reports whether Cancel or CancelAll discarded h.
func (h *Handle) Cancelled() bool {
	if h == nil || h.t == nil {
		return true
	}
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return h.cancelled
}

type event struct {
	at       float64
	seq      uint64
	start    float64
	n        int     // repetitions already fired
	interval float64 // 0 for one-shot
	stop     float64
	cb       Callback
	handle   *Handle
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// Transport is the shared logical clock for one session. Time only moves
// while the transport is started, either through Advance or Run.
type Transport struct {
	bpm float64

	// fireMu is held for the whole of a dispatch batch, so cancellation and
	// pause wait for in-flight callbacks and nothing fires after they return.
	fireMu sync.Mutex

	mu       sync.Mutex
	queue    eventQueue
	seq      uint64
	position float64
	running  bool
}

// New creates a stopped transport at bpm.
func New(bpm float64) *Transport {
	return &Transport{bpm: bpm}
}

// BPM returns the tempo.
func (t *Transport) BPM() float64 {
	return t.bpm
}

// Measures converts a measure count to seconds at the transport tempo.
func (t *Transport) Measures(n float64) float64 {
	return n * SecondsPerMeasure(t.bpm)
}

// FromNow returns the absolute time n measures after the current position.
func (t *Transport) FromNow(n float64) float64 {
	return t.NowSeconds() + t.Measures(n)
}

// Start begins advancing logical time from the current position.
// No-op if already running.
func (t *Transport) Start() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
}

// Pause freezes logical time at the current position.
func (t *Transport) Pause() {
	t.fireMu.Lock()
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	t.fireMu.Unlock()
}

// Stop freezes logical time and rewinds to zero. Pending work stays queued;
// call CancelAll to discard it.
func (t *Transport) Stop() {
	t.fireMu.Lock()
	t.mu.Lock()
	t.running = false
	t.position = 0
	t.mu.Unlock()
	t.fireMu.Unlock()
}

// CancelAll discards every pending event from every handle.
func (t *Transport) CancelAll() {
	t.fireMu.Lock()
	t.mu.Lock()
	for _, ev := range t.queue {
		ev.handle.cancelled = true
	}
	t.queue = nil
	t.mu.Unlock()
	t.fireMu.Unlock()
}

// Running reports whether logical time is advancing.
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Pending returns the number of queued events, cancelled ones included.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// NowSeconds returns the current logical position in seconds.
func (t *Transport) NowSeconds() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// NowPosition returns the current logical position in musical units.
func (t *Transport) NowPosition() Position {
	return PositionAt(t.NowSeconds(), t.bpm)
}

// ScheduleAt runs cb once when logical time reaches at (seconds).
func (t *Transport) ScheduleAt(at float64, cb Callback) *Handle {
	return t.schedule(at, 0, 0, cb)
}

// ScheduleRepeating runs cb at start, start+interval, ... for every time
// strictly below stop.
func (t *Transport) ScheduleRepeating(interval, start, stop float64, cb Callback) *Handle {
	if interval <= 0 {
		return t.schedule(start, 0, 0, cb)
	}
	return t.schedule(start, interval, stop, cb)
}

func (t *Transport) schedule(at, interval, stop float64, cb Callback) *Handle {
	h := &Handle{t: t}
	if interval > 0 && at >= stop {
		h.cancelled = true
		return h
	}
	t.mu.Lock()
	t.seq++
	heap.Push(&t.queue, &event{at: at, seq: t.seq, start: at, interval: interval, stop: stop, cb: cb, handle: h})
	t.mu.Unlock()
	return h
}

// Advance moves logical time forward by d seconds, firing every due event
// in time order. It does nothing while the transport is paused or stopped.
func (t *Transport) Advance(d float64) {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	target := t.position + d
	for len(t.queue) > 0 && t.queue[0].at <= target {
		ev := heap.Pop(&t.queue).(*event)
		if ev.handle.cancelled {
			continue
		}
		if ev.at > t.position {
			t.position = ev.at
		}
		if ev.interval > 0 {
			// computed from start to keep long runs from drifting past stop
			if next := ev.start + float64(ev.n+1)*ev.interval; next < ev.stop {
				t.seq++
				heap.Push(&t.queue, &event{
					at: next, seq: t.seq, start: ev.start, n: ev.n + 1,
					interval: ev.interval, stop: ev.stop, cb: ev.cb, handle: ev.handle,
				})
			}
		}
		t.mu.Unlock()
		ev.cb(ev.at)
		t.mu.Lock()
	}
	t.position = target
	t.mu.Unlock()
}

// Run drives logical time from the wall clock until ctx is cancelled.
func (t *Transport) Run(ctx context.Context, resolution time.Duration) {
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			t.Advance(elapsed.Seconds())
		}
	}
}
