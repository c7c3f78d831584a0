package transport

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

// --- Notation ---

func TestNotationSeconds(t *testing.T) {
	tests := []struct {
		n    Notation
		bpm  float64
		want float64
	}{
		{Eighth, 60, 0.5},
		{Quarter, 60, 1},
		{Half, 120, 1},
		{DottedHalf, 60, 3},
		{Sixteenth, 60, 0.25},
		{ThirtySecond, 60, 0.125},
		{Measure, 60, 4},
		{TwoMeasures, 80, 6},
		{Sustain, 60, 0},
		{"bogus", 60, 0},
	}
	for _, tt := range tests {
		if got := tt.n.Seconds(tt.bpm); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%q.Seconds(%v) = %v, want %v", tt.n, tt.bpm, got, tt.want)
		}
	}
}

func TestPositionAt(t *testing.T) {
	tests := []struct {
		seconds float64
		bpm     float64
		want    Position
	}{
		{0, 60, Position{}},
		{4, 60, Position{Measures: 1}},
		{5.25, 60, Position{Measures: 1, Beats: 1, Sixteenths: 1}},
		{3, 80, Position{Measures: 1}},
	}
	for _, tt := range tests {
		if got := PositionAt(tt.seconds, tt.bpm); got != tt.want {
			t.Errorf("PositionAt(%v, %v) = %v, want %v", tt.seconds, tt.bpm, got, tt.want)
		}
	}
}

func TestPositionRoundTrip(t *testing.T) {
	p := Position{Measures: 3, Beats: 2, Sixteenths: 1}
	if got := PositionAt(p.Seconds(90), 90); got != p {
		t.Errorf("round trip = %v, want %v", got, p)
	}
}

// --- Scheduling ---

func collect(tr *Transport) (*[]float64, Callback) {
	var (
		mu  sync.Mutex
		out []float64
	)
	return &out, func(at float64) {
		mu.Lock()
		out = append(out, at)
		mu.Unlock()
	}
}

func TestRepeatingStopsBelowBound(t *testing.T) {
	tr := New(60)
	got, cb := collect(tr)
	tr.ScheduleRepeating(0.5, 0, 2, cb)
	tr.Start()
	tr.Advance(10)

	want := []float64{0, 0.5, 1, 1.5}
	if len(*got) != len(want) {
		t.Fatalf("fired %v, want %v", *got, want)
	}
	for i := range want {
		if (*got)[i] != want[i] {
			t.Errorf("fire[%d] = %v, want %v", i, (*got)[i], want[i])
		}
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending = %d after bound, want 0", tr.Pending())
	}
}

func TestRepeatingStartAtOrPastStop(t *testing.T) {
	tr := New(60)
	h := tr.ScheduleRepeating(1, 4, 4, func(float64) { t.Error("should not fire") })
	if !h.Cancelled() {
		t.Error("handle with empty window should be pre-cancelled")
	}
	tr.Start()
	tr.Advance(10)
}

func TestNotRunningDoesNotAdvance(t *testing.T) {
	tr := New(60)
	fired := 0
	tr.ScheduleAt(0, func(float64) { fired++ })
	tr.Advance(5)
	if fired != 0 || tr.NowSeconds() != 0 {
		t.Errorf("stopped transport fired=%d now=%v, want 0, 0", fired, tr.NowSeconds())
	}
}

func TestPauseFreezesAndResumeContinues(t *testing.T) {
	tr := New(60)
	got, cb := collect(tr)
	tr.ScheduleRepeating(1, 0, 10, cb)
	tr.Start()
	tr.Advance(2.5)
	tr.Pause()
	tr.Advance(100)
	if tr.NowSeconds() != 2.5 {
		t.Errorf("NowSeconds while paused = %v, want 2.5", tr.NowSeconds())
	}
	if len(*got) != 3 {
		t.Fatalf("fired %v before pause, want 3 events", *got)
	}
	tr.Start()
	tr.Advance(1)
	if len(*got) != 4 || (*got)[3] != 3 {
		t.Errorf("after resume fired %v, want next event at 3", *got)
	}
}

func TestStopRewinds(t *testing.T) {
	tr := New(60)
	tr.Start()
	tr.Advance(3)
	tr.Stop()
	if tr.Running() || tr.NowSeconds() != 0 {
		t.Errorf("after Stop running=%v now=%v, want false, 0", tr.Running(), tr.NowSeconds())
	}
}

func TestCancelAllPreventsCallbacks(t *testing.T) {
	tr := New(60)
	fired := 0
	h1 := tr.ScheduleRepeating(0.5, 0, 100, func(float64) { fired++ })
	h2 := tr.ScheduleAt(3, func(float64) { fired++ })
	tr.Start()
	tr.Advance(1)
	before := fired
	tr.CancelAll()
	tr.Advance(50)
	if fired != before {
		t.Errorf("fired %d after CancelAll, want %d", fired, before)
	}
	if !h1.Cancelled() || !h2.Cancelled() {
		t.Error("CancelAll should mark every handle cancelled")
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", tr.Pending())
	}
}

func TestHandleCancelIdempotent(t *testing.T) {
	tr := New(60)
	fired := 0
	h := tr.ScheduleRepeating(1, 0, 10, func(float64) { fired++ })
	h.Cancel()
	h.Cancel()
	tr.Start()
	tr.Advance(10)
	if fired != 0 {
		t.Errorf("cancelled handle fired %d times", fired)
	}
	var nilHandle *Handle
	nilHandle.Cancel()
}

func TestSameTimeOrderedBySchedule(t *testing.T) {
	tr := New(60)
	var order []int
	for i := range 5 {
		tr.ScheduleAt(1, func(float64) { order = append(order, i) })
	}
	tr.Start()
	tr.Advance(1)
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestCallbackMaySchedule(t *testing.T) {
	tr := New(60)
	var got []float64
	tr.ScheduleAt(1, func(at float64) {
		got = append(got, at)
		tr.ScheduleAt(at+0.1, func(at float64) { got = append(got, at) })
	})
	tr.Start()
	tr.Advance(2)
	if len(got) != 2 || math.Abs(got[1]-1.1) > 1e-9 {
		t.Errorf("got %v, want [1 1.1]", got)
	}
}

func TestNowPositionDuringCallback(t *testing.T) {
	tr := New(60)
	var pos float64
	tr.ScheduleAt(2, func(float64) { pos = tr.NowSeconds() })
	tr.Start()
	tr.Advance(5)
	if pos != 2 {
		t.Errorf("NowSeconds inside callback = %v, want 2", pos)
	}
}

func TestLongRunNoDrift(t *testing.T) {
	tr := New(70)
	interval := Eighth.Seconds(70)
	stop := tr.Measures(20)
	count := 0
	tr.ScheduleRepeating(interval, 0, stop, func(float64) { count++ })
	tr.Start()
	tr.Advance(stop + 10)
	if count != 160 {
		t.Errorf("eighth notes over 20 measures = %d, want 160", count)
	}
}

func TestRunDrivesFromWallClock(t *testing.T) {
	tr := New(60)
	done := make(chan struct{})
	var once sync.Once
	tr.ScheduleAt(0.02, func(float64) { once.Do(func() { close(done) }) })
	tr.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not fire scheduled event")
	}
}
