package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/ambience/internal/arrangement"
	"github.com/satindergrewal/ambience/internal/capture"
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/pattern"
	"github.com/satindergrewal/ambience/internal/transport"
)

// --- Transition table ---

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		event   Event
		want    State
		effects []Effect
		err     error
	}{
		{Idle, RequestStart, Generating, []Effect{StartSchedulers}, nil},
		{Generating, Scheduled, Playing, []Effect{OpenCapture, StartTransport, ArmAutoStop}, nil},
		{Playing, Pause, Paused, []Effect{PauseTransport}, nil},
		{Paused, Resume, Playing, []Effect{StartTransport}, nil},
		{Playing, Stop, Stopped, teardown, nil},
		{Paused, Stop, Stopped, teardown, nil},
		{Playing, Elapsed, Stopped, teardown, nil},
		{Paused, Elapsed, Stopped, teardown, nil},
		{Stopped, TeardownDone, Idle, nil, nil},
		{Generating, Fatal, Stopped, abort, nil},
		{Playing, Fatal, Stopped, abort, nil},
		{Idle, Stop, Idle, nil, nil},
		{Idle, Elapsed, Idle, nil, nil},
		{Idle, Fatal, Idle, nil, nil},
		{Idle, Pause, Idle, nil, ErrNotPlaying},
		{Paused, Pause, Paused, nil, ErrNotPlaying},
		{Playing, Resume, Playing, nil, ErrNotPaused},
		{Idle, Resume, Idle, nil, ErrNotPaused},
		{Playing, RequestStart, Playing, nil, ErrInvalidTransition},
		{Idle, Scheduled, Idle, nil, ErrInvalidTransition},
		{Playing, TeardownDone, Playing, nil, ErrInvalidTransition},
	}
	for _, tt := range tests {
		got, effects, err := Transition(tt.from, tt.event)
		if !errors.Is(err, tt.err) || (err != nil) != (tt.err != nil) {
			t.Errorf("Transition(%s, %s) err = %v, want %v", tt.from, tt.event, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.want)
		}
		if !slices.Equal(effects, tt.effects) {
			t.Errorf("Transition(%s, %s) effects = %v, want %v", tt.from, tt.event, effects, tt.effects)
		}
	}
}

// --- Fakes ---

type fakeProvider struct {
	loaded map[pattern.Voice]bool

	mu       sync.Mutex
	triggers []pattern.Trigger
	opts     []pattern.Options
	silenced int
}

func providerWith(voices ...pattern.Voice) *fakeProvider {
	p := &fakeProvider{loaded: make(map[pattern.Voice]bool)}
	for _, v := range voices {
		p.loaded[v] = true
	}
	return p
}

func (p *fakeProvider) IsLoaded(v pattern.Voice) bool { return p.loaded[v] }

func (p *fakeProvider) Trigger(t pattern.Trigger, o pattern.Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggers = append(p.triggers, t)
	p.opts = append(p.opts, o)
}

func (p *fakeProvider) Silence() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silenced++
}

func (p *fakeProvider) got() ([]pattern.Trigger, []pattern.Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.triggers), slices.Clone(p.opts)
}

type fakeRecorder struct {
	block chan struct{} // Stop ignores ctx and waits on it when set

	mu        sync.Mutex
	started   bool
	stopped   bool
	discarded bool
}

func (r *fakeRecorder) Start() {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
}

func (r *fakeRecorder) Stop(ctx context.Context) ([]int16, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	return make([]int16, 9600), nil
}

func (r *fakeRecorder) Discard() {
	r.mu.Lock()
	r.discarded = true
	r.mu.Unlock()
}

type fakeTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

type harness struct {
	m      *Manager
	p      *fakeProvider
	dir    string
	block  chan struct{}
	recs   []*fakeRecorder
	timers []*fakeTimer
}

func newHarness(t *testing.T, p *fakeProvider) *harness {
	t.Helper()
	h := &harness{p: p, dir: t.TempDir()}
	ctrl := arrangement.NewController(maqam.NewCatalog())
	ctrl.AfterFunc = func(d time.Duration, f func()) arrangement.Stopper {
		ft := &fakeTimer{d: d, fire: f}
		h.timers = append(h.timers, ft)
		return ft
	}
	newRec := func() Recorder {
		r := &fakeRecorder{block: h.block}
		h.recs = append(h.recs, r)
		return r
	}
	h.m = NewManager(Config{Mode: "synthesized"}, ctrl, p, newRec, capture.NewExporter(h.dir, ""), nil)
	h.m.Drive = func(context.Context, *transport.Transport) {}
	return h
}

func (h *harness) transport() *transport.Transport {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.m.sess == nil {
		return nil
	}
	return h.m.sess.transport
}

func (h *harness) handles() arrangement.Handles {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.sess.Handles
}

func drain(ch <-chan Notification) []Notification {
	var out []Notification
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

func states(ns []Notification) []State {
	var out []State
	for _, n := range ns {
		out = append(out, n.State)
	}
	return out
}

func sel(voices ...pattern.Voice) []arrangement.Selection {
	var out []arrangement.Selection
	for _, v := range voices {
		out = append(out, arrangement.Selection{Voice: v, Enabled: true, Volume: arrangement.Vol(0.8)})
	}
	return out
}

// --- End to end ---

func TestHijazNeyEndToEnd(t *testing.T) {
	sounded := 0
	for seed := uint64(1); seed <= 10; seed++ {
		h := newHarness(t, providerWith(pattern.Voices...))
		ch := h.m.Subscribe()

		id, err := h.m.RequestStart(Request{Scale: "hijaz", BPM: 60, Duration: 8, Selections: sel(pattern.Ney), Seed: seed})
		if err != nil {
			t.Fatalf("RequestStart: %v", err)
		}
		st := h.m.Status()
		if st.State != Playing || st.Measures != 2 || st.Scale != "hijaz" {
			t.Fatalf("Status = %+v, want playing hijaz over 2 measures", st)
		}
		if len(h.timers) != 1 || h.timers[0].d != 8500*time.Millisecond {
			t.Fatalf("auto-stop timers = %v, want one at 8.5s", h.timers)
		}

		h.transport().Advance(10)
		triggers, opts := h.p.got()
		for i, tr := range triggers {
			if tr.Voice != pattern.Ney {
				t.Errorf("seed %d: trigger voice = %s, want ney", seed, tr.Voice)
			}
			if tr.At < 4 || tr.At >= 8 {
				t.Errorf("seed %d: ney trigger at %v, want within [4, 8)", seed, tr.At)
			}
			if opts[i].Volume != 0.8 || opts[i].Tempo != 60 || opts[i].Loop {
				t.Errorf("seed %d: options = %+v, want volume 0.8 tempo 60", seed, opts[i])
			}
		}
		if len(triggers) > 0 {
			sounded++
		}

		h.timers[0].fire()

		if st := h.m.Status(); st.State != Idle {
			t.Errorf("seed %d: state after elapse = %s, want idle", seed, st.State)
		}
		ns := drain(ch)
		if got := states(ns); !slices.Equal(got, []State{Playing, Stopped, Idle}) {
			t.Errorf("seed %d: notifications = %v, want playing stopped idle", seed, got)
		}
		for _, n := range ns {
			if n.SessionID != id {
				t.Errorf("seed %d: notification for %q, want %q", seed, n.SessionID, id)
			}
		}

		a, err := h.m.Artifact()
		if err != nil {
			t.Fatalf("seed %d: Artifact: %v", seed, err)
		}
		if a.LoopEnd != 7.5 || a.LoopStart != 0 {
			t.Errorf("seed %d: loop = %v-%v, want 0-7.5", seed, a.LoopStart, a.LoopEnd)
		}
		if len(a.Events) != len(triggers) || a.Scale != "hijaz" || a.Mode != "synthesized" {
			t.Errorf("seed %d: artifact %d events %s/%s, want %d hijaz/synthesized", seed, len(a.Events), a.Scale, a.Mode, len(triggers))
		}
		if r := h.recs[0]; !r.started || !r.stopped || r.discarded {
			t.Errorf("seed %d: recorder = %+v, want started and stopped", seed, r)
		}
	}
	if sounded == 0 {
		t.Error("no seed produced a ney trigger")
	}
}

// --- Start failures ---

func TestNoLoadedVoices(t *testing.T) {
	h := newHarness(t, providerWith())
	_, err := h.m.RequestStart(Request{Scale: "rast", BPM: 80, Duration: 10, Selections: sel(pattern.Oud)})
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Fatalf("err = %v, want ErrResourceUnavailable", err)
	}
	if st := h.m.Status(); st.State != Idle {
		t.Errorf("state = %s, want idle", st.State)
	}
	if len(h.recs) != 0 {
		t.Error("recorder opened for a failed start")
	}
}

func TestUnavailableStartKeepsRunningSession(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Oud))
	id, err := h.m.RequestStart(Request{Scale: "rast", BPM: 80, Duration: 10, Selections: sel(pattern.Oud), Seed: 3})
	if err != nil {
		t.Fatalf("RequestStart: %v", err)
	}

	clear(h.p.loaded)
	if _, err := h.m.RequestStart(Request{Scale: "saba", BPM: 70, Duration: 10, Selections: sel(pattern.Oud)}); !errors.Is(err, ErrResourceUnavailable) {
		t.Fatalf("err = %v, want ErrResourceUnavailable", err)
	}

	st := h.m.Status()
	if st.SessionID != id || st.State != Playing || st.Scale != "rast" {
		t.Errorf("Status = %+v, want session %s still playing rast", st, id)
	}
	if st.ActiveHandles != 1 {
		t.Errorf("ActiveHandles = %d, want 1", st.ActiveHandles)
	}
	if len(h.recs) != 1 || h.recs[0].stopped || h.recs[0].discarded {
		t.Error("running capture was touched by the failed start")
	}
	if h.timers[0].stopped {
		t.Error("auto-stop disarmed by the failed start")
	}
}

func TestNothingScheduled(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Oud))
	ch := h.m.Subscribe()
	_, err := h.m.RequestStart(Request{Scale: "rast", BPM: 80, Duration: 10, Selections: sel(pattern.Ney, pattern.Daf)})
	if !errors.Is(err, ErrNothingScheduled) {
		t.Fatalf("err = %v, want ErrNothingScheduled", err)
	}
	if st := h.m.Status(); st.State != Idle || st.SessionID != "" {
		t.Errorf("Status = %+v, want idle with no session", st)
	}
	if len(h.recs) != 0 || len(h.timers) != 0 {
		t.Error("capture or auto-stop started for an empty arrangement")
	}
	ns := drain(ch)
	if len(ns) != 1 || !errors.Is(ns[0].Err, ErrNothingScheduled) {
		t.Errorf("notifications = %+v, want one failure", ns)
	}
}

func TestUnloadedVoiceSkipped(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Oud))
	if _, err := h.m.RequestStart(Request{Scale: "rast", BPM: 80, Duration: 10, Selections: sel(pattern.Oud, pattern.Ney)}); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	if got := h.m.Status().Voices; !slices.Equal(got, []pattern.Voice{pattern.Oud}) {
		t.Errorf("Voices = %v, want [oud]", got)
	}
}

// --- Stop ---

func TestStopTwice(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Voices...))
	h.m.Stop()
	if _, err := h.m.RequestStart(Request{Scale: "saba", BPM: 70, Duration: 30, Selections: sel(pattern.Oud, pattern.Ambient)}); err != nil {
		t.Fatal(err)
	}
	ch := h.m.Subscribe()
	h.m.Stop()
	h.m.Stop()

	got := states(drain(ch))
	if !slices.Equal(got, []State{Stopped, Idle}) {
		t.Errorf("notifications = %v, want one stopped then idle", got)
	}
	if h.p.silenced != 1 {
		t.Errorf("provider silenced %d times, want 1", h.p.silenced)
	}
	if _, err := h.m.Artifact(); err != nil {
		t.Errorf("Artifact after stop: %v", err)
	}
	if !h.timers[0].stopped {
		t.Error("auto-stop still armed after stop")
	}
}

func TestReplaceLeaksNoHandles(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Voices...))
	idA, err := h.m.RequestStart(Request{Scale: "rast", BPM: 90, Duration: 60, Selections: sel(pattern.Oud, pattern.Qanun, pattern.Daf, pattern.Ambient)})
	if err != nil {
		t.Fatal(err)
	}
	trA := h.transport()
	handlesA := h.handles()
	trA.Advance(5)

	idB, err := h.m.RequestStart(Request{Scale: "bayati", BPM: 70, Duration: 60, Selections: sel(pattern.Ney)})
	if err != nil {
		t.Fatal(err)
	}

	if handlesA.Active() != 0 {
		t.Errorf("%d handles of the replaced session still active", handlesA.Active())
	}
	if trA.Pending() != 0 || trA.Running() {
		t.Errorf("replaced transport pending=%d running=%v, want 0 false", trA.Pending(), trA.Running())
	}
	before, _ := h.p.got()
	trA.Start()
	trA.Advance(60)
	if after, _ := h.p.got(); len(after) != len(before) {
		t.Errorf("replaced session fired %d more triggers", len(after)-len(before))
	}

	st := h.m.Status()
	if st.SessionID != idB || st.State != Playing || st.Scale != "bayati" {
		t.Errorf("Status = %+v, want session B playing", st)
	}
	if a, err := h.m.Artifact(); err != nil || a.SessionID != idA {
		t.Errorf("Artifact = %q, %v; want take of session A", a.SessionID, err)
	}

	// A's timer must not stop B
	h.timers[0].fire()
	if st := h.m.Status(); st.SessionID != idB || st.State != Playing {
		t.Errorf("stale auto-stop changed session B to %s", st.State)
	}
}

func TestCaptureTimeout(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Voices...))
	h.block = make(chan struct{})
	t.Cleanup(func() { close(h.block) })
	h.m.cfg.CaptureTimeout = 20 * time.Millisecond

	if _, err := h.m.RequestStart(Request{Scale: "nahawand", BPM: 80, Duration: 20, Selections: sel(pattern.Oud)}); err != nil {
		t.Fatal(err)
	}
	ch := h.m.Subscribe()

	done := make(chan struct{})
	go func() {
		h.m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked past the capture timeout")
	}

	ns := drain(ch)
	if len(ns) == 0 || ns[0].State != Stopped || !strings.Contains(ns[0].Warning, ErrCaptureTimeout.Error()) {
		t.Errorf("notifications = %+v, want stopped with capture warning", ns)
	}
	if st := h.m.Status(); st.State != Idle {
		t.Errorf("state = %s, want idle", st.State)
	}
	if _, err := h.m.Artifact(); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Artifact err = %v, want ErrNoArtifact", err)
	}
}

func TestFailDiscardsCapture(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Voices...))
	if _, err := h.m.RequestStart(Request{Scale: "rast", BPM: 80, Duration: 20, Selections: sel(pattern.Daf)}); err != nil {
		t.Fatal(err)
	}
	ch := h.m.Subscribe()
	cause := errors.New("audio device lost")
	h.m.Fail(cause)

	if st := h.m.Status(); st.State != Idle {
		t.Errorf("state = %s, want idle", st.State)
	}
	if r := h.recs[0]; !r.discarded || r.stopped {
		t.Errorf("recorder = %+v, want discarded", r)
	}
	ns := drain(ch)
	if len(ns) != 1 || !errors.Is(ns[0].Err, cause) {
		t.Errorf("notifications = %+v, want the failure", ns)
	}
}

// --- Pause / resume ---

func TestPauseResume(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Voices...))
	if err := h.m.Pause(); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Pause while idle = %v, want ErrNotPlaying", err)
	}
	if err := h.m.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume while idle = %v, want ErrNotPaused", err)
	}

	if _, err := h.m.RequestStart(Request{Scale: "hijaz", BPM: 60, Duration: 30, Selections: sel(pattern.Ney)}); err != nil {
		t.Fatal(err)
	}
	tr := h.transport()
	tr.Advance(2.5)

	if err := h.m.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Resume while playing = %v, want ErrNotPaused", err)
	}
	if err := h.m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	want := transport.PositionAt(2.5, 60).String()
	if st := h.m.Status(); st.State != Paused || st.PausedAt != want {
		t.Errorf("Status = %s at %q, want paused at %q", st.State, st.PausedAt, want)
	}
	tr.Advance(5)
	if got := tr.NowSeconds(); got != 2.5 {
		t.Errorf("paused transport moved to %v", got)
	}
	if err := h.m.Pause(); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("second Pause = %v, want ErrNotPlaying", err)
	}
	if r := h.recs[0]; r.stopped || r.discarded {
		t.Error("recorder closed by pause")
	}

	if err := h.m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	tr.Advance(1)
	if got := tr.NowSeconds(); got != 3.5 {
		t.Errorf("resumed position = %v, want 3.5", got)
	}
}

// --- Export ---

func TestExportLatestTake(t *testing.T) {
	h := newHarness(t, providerWith(pattern.Voices...))
	if _, err := h.m.Export(false); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Export before any take = %v, want ErrNoArtifact", err)
	}

	if _, err := h.m.RequestStart(Request{Scale: "hijaz", BPM: 60, Duration: 8, Selections: sel(pattern.Ambient)}); err != nil {
		t.Fatal(err)
	}
	h.transport().Advance(9)
	_, opts := h.p.got()
	if len(opts) == 0 || !opts[0].Loop {
		t.Errorf("ambient options = %+v, want looped", opts)
	}
	h.m.Stop()

	wav, err := h.m.Export(false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(wav), "maqam_ambience_hijaz_synthesized_") || filepath.Ext(wav) != ".wav" {
		t.Errorf("export name = %s", filepath.Base(wav))
	}
	mid, err := h.m.ExportMIDI()
	if err != nil {
		t.Fatalf("ExportMIDI: %v", err)
	}
	for _, p := range []string{wav, mid} {
		if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
			t.Errorf("%s not written: %v", p, err)
		}
	}
}

// --- Feed ---

func TestFeedKeepsMostRecent(t *testing.T) {
	f := NewFeed(3)
	for i := 0; i < 5; i++ {
		f.Notify("note", float64(i), pattern.Oud)
	}
	got := f.Recent(0)
	if len(got) != 3 || got[0].At != 2 || got[2].At != 4 {
		t.Errorf("Recent = %+v, want events 2..4", got)
	}
	if got := f.Recent(1); len(got) != 1 || got[0].At != 4 {
		t.Errorf("Recent(1) = %+v, want event 4", got)
	}
	if f.Total() != 5 {
		t.Errorf("Total = %d, want 5", f.Total())
	}
}
