package pattern

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/transport"
)

// Voice identifies one instrument voice.
type Voice string

const (
	Oud     Voice = "oud"
	Ney     Voice = "ney"
	Qanun   Voice = "qanun"
	Daf     Voice = "daf"
	Ambient Voice = "ambient"
	Nature  Voice = "nature"
)

// Voices lists every voice in the order arrangements start them.
var Voices = []Voice{Oud, Ney, Qanun, Daf, Ambient, Nature}

// Action says how the provider should play a trigger.
type Action int

const (
	AttackRelease Action = iota // play for Length then release
	Attack                      // hold until a matching Release
	Release
)

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a Action) String() string {
	switch a {
	case Attack:
		return "attack"
	case Release:
		return "release"
	default:
		return "attack_release"
	}
}

// Trigger is one decision made by a scheduler: what to sound and when.
// Pitched voices fill Pitches; percussion and nature fill Sound.
type Trigger struct {
	Voice   Voice              `json:"voice"`
	Pitches []maqam.Pitch      `json:"pitches,omitempty"`
	Sound   string             `json:"sound,omitempty"`
	At      float64            `json:"at"` // transport seconds
	Length  transport.Notation `json:"length"`
	Action  Action             `json:"action"`
}

// Options are per-voice playback options forwarded to the provider.
type Options struct {
	Volume float64
	Loop   bool
	Tempo  float64 // BPM used to turn Length into seconds
}

// Sink receives triggers. Implementations must not block.
type Sink interface {
	Trigger(Trigger)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Trigger)

func (f SinkFunc) Trigger(t Trigger) { f(t) }

// Visual receives fire-and-forget notifications for display.
type Visual interface {
	Notify(kind string, at float64, voice Voice)
}

// Params are the inputs shared by every scheduler.
type Params struct {
	Transport *transport.Transport
	Scale     maqam.Scale
	Measures  int
	BPM       float64 // defaults to the transport tempo
	Sink      Sink
	Visual    Visual // optional
	Rand      *rand.Rand
}

var (
	ErrNoTransport = errors.New("pattern: no transport")
	ErrNoSink      = errors.New("pattern: no trigger sink")
	ErrEmptyScale  = errors.New("pattern: scale has no pitches")
	ErrNoMeasures  = errors.New("pattern: measure count must be positive")
)

func (p *Params) validate() error {
	if p.Transport == nil {
		return ErrNoTransport
	}
	if p.Sink == nil {
		return ErrNoSink
	}
	if len(p.Scale.Pitches) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyScale, p.Scale.ID)
	}
	if p.Measures <= 0 {
		return ErrNoMeasures
	}
	if p.BPM <= 0 {
		p.BPM = p.Transport.BPM()
	}
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return nil
}

// bound is the transport time at which every scheduler stops.
func (p Params) bound() float64 {
	return p.Transport.Measures(float64(p.Measures))
}

func (p Params) notify(kind string, at float64, v Voice) {
	if p.Visual != nil {
		p.Visual.Notify(kind, at, v)
	}
}

// Handle cancels everything one scheduler registered.
type Handle struct {
	Voice Voice

	mu        sync.Mutex
	parts     []*transport.Handle
	cancelled bool
}

func newHandle(v Voice, parts ...*transport.Handle) *Handle {
	return &Handle{Voice: v, parts: parts}
}

// Cancel discards all pending work for the voice. Safe to call repeatedly.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	// callbacks never take h.mu, so holding it across the transport
	// cancels cannot deadlock with a dispatch batch
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	for _, p := range h.parts {
		p.Cancel()
	}
	h.cancelled = true
}

// Cancelled reports whether Cancel has run.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Scheduler registers one voice's pattern on the transport.
type Scheduler func(Params) (*Handle, error)

var registry = map[Voice]Scheduler{
	Oud:     ScheduleOud,
	Ney:     ScheduleNey,
	Qanun:   ScheduleQanun,
	Daf:     ScheduleDaf,
	Ambient: ScheduleAmbient,
	Nature:  ScheduleNature,
}

// Lookup returns the scheduler for v.
func Lookup(v Voice) (Scheduler, bool) {
	s, ok := registry[v]
	return s, ok
}
