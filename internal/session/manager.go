package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/satindergrewal/ambience/internal/arrangement"
	"github.com/satindergrewal/ambience/internal/capture"
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/pattern"
	"github.com/satindergrewal/ambience/internal/transport"
)

var (
	ErrResourceUnavailable = errors.New("no instrument voices are loaded")
	ErrNothingScheduled    = errors.New("no selected voice could be scheduled")
	ErrNoArtifact          = errors.New("no captured take to export")
	ErrCaptureTimeout      = errors.New("capture did not stop in time")
)

// Provider sounds triggers. voice.Bank is the production provider.
type Provider interface {
	IsLoaded(v pattern.Voice) bool
	Trigger(t pattern.Trigger, opts pattern.Options)
}

// silencer is implemented by providers that can cut every sound at once.
type silencer interface {
	Silence()
}

// Recorder captures the session output. capture.Recorder is the
// production recorder.
type Recorder interface {
	Start()
	Stop(ctx context.Context) ([]int16, error)
	Discard()
}

// Titler names a finished take. It runs after the take is stored and may
// be slow; the stored title is replaced only on success.
type Titler func(ctx context.Context, a capture.Artifact) (string, error)

type Config struct {
	StopGuard      time.Duration // added to the duration before auto-stop
	CaptureTimeout time.Duration // bound on waiting for the recorder
	Tick           time.Duration // transport resolution
	Mode           string        // provider mode label for exports
}

// Request asks for a new session.
type Request struct {
	Scale      string                  `json:"scale"`
	BPM        float64                 `json:"tempo"`
	Duration   float64                 `json:"duration"`
	Selections []arrangement.Selection `json:"instruments"`
	Seed       uint64                  `json:"seed,omitempty"`
}

// Notification reports one state change or failure.
type Notification struct {
	SessionID string `json:"session_id,omitempty"`
	State     State  `json:"state"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
	Warning   string `json:"warning,omitempty"`
}

// Session is the single active playback session.
type Session struct {
	ID          string
	State       State
	Arrangement arrangement.Arrangement
	PausedAt    transport.Position
	Handles     arrangement.Handles

	transport *transport.Transport
	recorder  Recorder
	cancel    context.CancelFunc

	evMu   sync.Mutex
	events []pattern.Trigger
}

func (s *Session) record(t pattern.Trigger) {
	s.evMu.Lock()
	s.events = append(s.events, t)
	s.evMu.Unlock()
}

func (s *Session) trigLog() []pattern.Trigger {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return append([]pattern.Trigger(nil), s.events...)
}

// Manager owns the session lifecycle. Every transition runs under one
// mutex, so a new request always waits for the previous teardown.
type Manager struct {
	cfg         Config
	ctrl        *arrangement.Controller
	provider    Provider
	newRecorder func() Recorder
	exporter    *capture.Exporter
	visual      pattern.Visual

	// Drive advances the transport in real time. Tests replace it to step
	// the transport by hand.
	Drive func(ctx context.Context, tr *transport.Transport)
	// Titler is optional.
	Titler Titler

	mu       sync.Mutex
	sess     *Session
	artifact *capture.Artifact

	subMu sync.Mutex
	subs  map[<-chan Notification]chan Notification
}

// NewManager wires a manager. visual may be nil.
func NewManager(cfg Config, ctrl *arrangement.Controller, provider Provider, newRecorder func() Recorder, exporter *capture.Exporter, visual pattern.Visual) *Manager {
	if cfg.StopGuard <= 0 {
		cfg.StopGuard = 500 * time.Millisecond
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 3 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	m := &Manager{
		cfg:         cfg,
		ctrl:        ctrl,
		provider:    provider,
		newRecorder: newRecorder,
		exporter:    exporter,
		visual:      visual,
		subs:        make(map[<-chan Notification]chan Notification),
	}
	m.Drive = func(ctx context.Context, tr *transport.Transport) {
		go tr.Run(ctx, m.cfg.Tick)
	}
	return m
}

// Subscribe returns a channel of notifications. Slow subscribers miss
// notifications rather than delaying transitions.
func (m *Manager) Subscribe() <-chan Notification {
	ch := make(chan Notification, 32)
	m.subMu.Lock()
	m.subs[ch] = ch
	m.subMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch <-chan Notification) {
	m.subMu.Lock()
	delete(m.subs, ch)
	m.subMu.Unlock()
}

func (m *Manager) notify(n Notification) {
	switch {
	case n.Err != nil:
		log.Printf("Session %s %s: %s: %v", n.SessionID, n.State, n.Message, n.Err)
	case n.Warning != "":
		log.Printf("Session %s %s: %s (warning: %s)", n.SessionID, n.State, n.Message, n.Warning)
	default:
		log.Printf("Session %s %s: %s", n.SessionID, n.State, n.Message)
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// RequestStart tears down any running session and starts a new one.
// It returns the new session id.
func (m *Manager) RequestStart(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A start that cannot run leaves the current session alone.
	if !m.anyLoaded() {
		n := Notification{State: Idle, Message: "cannot start", Err: ErrResourceUnavailable}
		if m.sess != nil {
			n.SessionID, n.State = m.sess.ID, m.sess.State
		}
		m.notify(n)
		return "", ErrResourceUnavailable
	}

	if m.sess != nil {
		m.endLocked(Stop, "replaced by a new request")
	}

	a := m.ctrl.Create(req.Scale, req.BPM, req.Duration, req.Selections, req.Seed)
	s := &Session{ID: uuid.NewString(), State: Idle, Arrangement: a}
	m.sess = s

	if err := m.applyLocked(s, RequestStart); err != nil {
		m.failLocked(err)
		return "", err
	}
	if err := m.applyLocked(s, Scheduled); err != nil {
		m.failLocked(err)
		return "", err
	}

	m.notify(Notification{
		SessionID: s.ID,
		State:     s.State,
		Message: fmt.Sprintf("%s at %.0f BPM for %.0fs (%d measures, voices %v)",
			a.Scale.Name, a.BPM, a.Duration, a.Measures, s.Handles.Voices()),
	})
	return s.ID, nil
}

func (m *Manager) anyLoaded() bool {
	for _, v := range pattern.Voices {
		if m.provider.IsLoaded(v) {
			return true
		}
	}
	return false
}

// Pause freezes the transport. The recorder keeps running.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ErrNotPlaying
	}
	if err := m.applyLocked(m.sess, Pause); err != nil {
		return err
	}
	m.notify(Notification{SessionID: m.sess.ID, State: Paused, Message: "paused at " + m.sess.PausedAt.String()})
	return nil
}

// Resume continues from where Pause left off.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return ErrNotPaused
	}
	if err := m.applyLocked(m.sess, Resume); err != nil {
		return err
	}
	m.notify(Notification{SessionID: m.sess.ID, State: Playing, Message: "resumed from " + m.sess.PausedAt.String()})
	return nil
}

// Stop ends the session and keeps its capture. Stopping with no session
// is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		m.endLocked(Stop, "stopped")
	}
}

// Fail tears the session down after an unrecoverable error.
func (m *Manager) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		m.failLocked(err)
	}
}

// elapsed runs from the auto-stop timer. Timers left over from an
// earlier session are ignored.
func (m *Manager) elapsed(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.ID != id {
		return
	}
	m.endLocked(Elapsed, "duration elapsed")
}

func (m *Manager) endLocked(e Event, msg string) {
	s := m.sess
	warning, err := m.teardownLocked(s, e)
	if err != nil {
		log.Printf("Session %s teardown: %v", s.ID, err)
	}
	m.notify(Notification{SessionID: s.ID, State: Stopped, Message: msg, Warning: warning})
	m.notify(Notification{SessionID: s.ID, State: Idle, Message: "ready"})
}

func (m *Manager) failLocked(cause error) {
	s := m.sess
	if _, err := m.teardownLocked(s, Fatal); err != nil {
		log.Printf("Session %s teardown: %v", s.ID, err)
	}
	m.sess = nil
	m.notify(Notification{SessionID: s.ID, State: Idle, Message: "session failed", Err: cause})
}

// teardownLocked moves s through Stopped to Idle and clears it.
func (m *Manager) teardownLocked(s *Session, e Event) (string, error) {
	next, effects, err := Transition(s.State, e)
	if err != nil {
		return "", err
	}
	s.State = next
	warning := m.runLocked(s, effects)
	if next == Stopped {
		s.State, _, _ = Transition(s.State, TeardownDone)
	}
	m.sess = nil
	return warning, nil
}

func (m *Manager) applyLocked(s *Session, e Event) error {
	next, effects, err := Transition(s.State, e)
	if err != nil {
		return err
	}
	s.State = next
	m.runLocked(s, effects)
	switch e {
	case RequestStart:
		if s.Handles.Active() == 0 {
			return ErrNothingScheduled
		}
	case Pause:
		s.PausedAt = s.transport.NowPosition()
	}
	return nil
}

// runLocked executes effects in order. It returns a warning for problems
// that do not stop the transition.
func (m *Manager) runLocked(s *Session, effects []Effect) string {
	var warning string
	var signal []int16
	captured := false

	for _, eff := range effects {
		switch eff {
		case StartSchedulers:
			m.startSchedulers(s)
		case OpenCapture:
			if m.newRecorder != nil {
				s.recorder = m.newRecorder()
				s.recorder.Start()
			}
		case StartTransport:
			s.transport.Start()
			if s.cancel == nil {
				ctx, cancel := context.WithCancel(context.Background())
				s.cancel = cancel
				m.Drive(ctx, s.transport)
			}
		case ArmAutoStop:
			d := time.Duration(s.Arrangement.Duration*float64(time.Second)) + m.cfg.StopGuard
			id := s.ID
			m.ctrl.ArmAutoStop(d, func() { m.elapsed(id) })
		case PauseTransport:
			s.transport.Pause()
		case DisarmAutoStop:
			m.ctrl.DisarmAutoStop()
		case CancelHandles:
			m.ctrl.Stop(s.Handles)
		case CancelAll:
			if s.transport != nil {
				s.transport.CancelAll()
			}
		case StopTransport:
			if s.transport != nil {
				s.transport.Stop()
			}
			if s.cancel != nil {
				s.cancel()
			}
			if sl, ok := m.provider.(silencer); ok {
				sl.Silence()
			}
		case StopCapture:
			var err error
			signal, err = m.stopCapture(s)
			if err != nil {
				warning = err.Error()
			} else {
				captured = s.recorder != nil
			}
		case Finalize:
			if captured {
				m.finalize(s, signal)
			}
		case DiscardCapture:
			if s.recorder != nil {
				s.recorder.Discard()
			}
		}
	}
	return warning
}

func (m *Manager) startSchedulers(s *Session) {
	a := s.Arrangement
	sel := make(map[pattern.Voice]arrangement.Selection, len(a.Selections))
	for v, x := range a.Selections {
		if x.Enabled && !m.provider.IsLoaded(v) {
			log.Printf("Voice %s is not loaded, skipping", v)
			x.Enabled = false
		}
		sel[v] = x
	}
	a.Selections = sel

	s.transport = transport.New(a.BPM)
	sink := pattern.SinkFunc(func(t pattern.Trigger) {
		s.record(t)
		m.provider.Trigger(t, pattern.Options{
			Volume: a.Volume(t.Voice),
			Loop:   t.Voice == pattern.Ambient,
			Tempo:  a.BPM,
		})
	})
	s.Handles = m.ctrl.Start(a, s.transport, sink, m.visual)
}

// stopCapture waits for the recorder until CaptureTimeout. A recorder that
// overruns is abandoned and its capture lost.
func (m *Manager) stopCapture(s *Session) ([]int16, error) {
	if s.recorder == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CaptureTimeout)
	defer cancel()

	type result struct {
		pcm []int16
		err error
	}
	done := make(chan result, 1)
	go func() {
		pcm, err := s.recorder.Stop(ctx)
		done <- result{pcm, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, ErrCaptureTimeout
			}
			return nil, fmt.Errorf("stop capture: %w", r.err)
		}
		return r.pcm, nil
	case <-ctx.Done():
		return nil, ErrCaptureTimeout
	}
}

func (m *Manager) finalize(s *Session, signal []int16) {
	a := capture.Finalize(signal, s.Arrangement.Duration)
	a.SessionID = s.ID
	a.Scale = s.Arrangement.Scale.ID
	a.Mode = m.cfg.Mode
	a.BPM = s.Arrangement.BPM
	a.Events = s.trigLog()
	a.Title = maqam.Title(a.Scale, s.ID)
	m.artifact = &a
	log.Printf("Captured %q: %v of audio, %d events, loop 0-%.1fs", a.Title, a.Length(), len(a.Events), a.LoopEnd)

	if m.Titler != nil {
		go m.retitle(a)
	}
}

func (m *Manager) retitle(a capture.Artifact) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	title, err := m.Titler(ctx, a)
	if err != nil || title == "" {
		if err != nil {
			log.Printf("Title generation failed, keeping %q: %v", a.Title, err)
		}
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.artifact != nil && m.artifact.SessionID == a.SessionID {
		m.artifact.Title = title
		log.Printf("Take %s titled %q", a.SessionID, title)
	}
}

// Status is a snapshot of the manager.
type Status struct {
	SessionID     string          `json:"session_id,omitempty"`
	State         State           `json:"state"`
	Scale         string          `json:"scale,omitempty"`
	ScaleName     string          `json:"scale_name,omitempty"`
	BPM           float64         `json:"tempo,omitempty"`
	Duration      float64         `json:"duration,omitempty"`
	Measures      int             `json:"measures,omitempty"`
	Seed          uint64          `json:"seed,omitempty"`
	Voices        []pattern.Voice `json:"voices,omitempty"`
	ActiveHandles int             `json:"active_handles"`
	Position      string          `json:"position,omitempty"`
	Elapsed       float64         `json:"elapsed"`
	PausedAt      string          `json:"paused_at,omitempty"`
	Mode          string          `json:"mode"`
	LastTake      string          `json:"last_take,omitempty"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: Idle, Mode: m.cfg.Mode}
	if m.artifact != nil {
		st.LastTake = m.artifact.Title
	}
	s := m.sess
	if s == nil {
		return st
	}
	a := s.Arrangement
	st.SessionID = s.ID
	st.State = s.State
	st.Scale = a.Scale.ID
	st.ScaleName = a.Scale.Name
	st.BPM = a.BPM
	st.Duration = a.Duration
	st.Measures = a.Measures
	st.Seed = a.Seed
	st.Voices = s.Handles.Voices()
	st.ActiveHandles = s.Handles.Active()
	if s.transport != nil {
		st.Position = s.transport.NowPosition().String()
		st.Elapsed = s.transport.NowSeconds()
	}
	if s.State == Paused {
		st.PausedAt = s.PausedAt.String()
	}
	return st
}

// Artifact returns a copy of the latest take.
func (m *Manager) Artifact() (capture.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.artifact == nil {
		return capture.Artifact{}, ErrNoArtifact
	}
	return *m.artifact, nil
}

// Export writes the latest take as WAV. With loop set the seamless-loop
// rendition is written instead.
func (m *Manager) Export(loop bool) (string, error) {
	a, err := m.Artifact()
	if err != nil {
		return "", err
	}
	if loop {
		return m.exporter.ExportLoop(a, a.Scale, a.Mode)
	}
	return m.exporter.ExportToFile(a, a.Scale, a.Mode)
}

// ExportMIDI writes the latest take's trigger log as a MIDI file.
func (m *Manager) ExportMIDI() (string, error) {
	a, err := m.Artifact()
	if err != nil {
		return "", err
	}
	return m.exporter.ExportMIDI(a, a.Scale, a.Mode)
}
