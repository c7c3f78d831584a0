package arrangement

import (
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/pattern"
	"github.com/satindergrewal/ambience/internal/transport"
)

// DefaultVolume applies when a selection leaves volume unset.
const DefaultVolume = 0.7

// Selection enables one voice at a volume. A nil Volume means the default;
// explicit values are clamped to [0,1], so 0 mutes the voice.
type Selection struct {
	Voice   pattern.Voice `json:"voice"`
	Enabled bool          `json:"enabled"`
	Volume  *float64      `json:"volume,omitempty"`
}

// Vol returns a volume for a Selection literal.
func Vol(v float64) *float64 { return &v }

// Arrangement is one immutable generation request, resolved.
type Arrangement struct {
	Scale      maqam.Scale
	BPM        float64
	Duration   float64 // seconds
	Selections map[pattern.Voice]Selection
	Measures   int
	Seed       uint64
}

// Selected returns the enabled voices in canonical order.
func (a Arrangement) Selected() []pattern.Voice {
	var out []pattern.Voice
	for _, v := range pattern.Voices {
		if s, ok := a.Selections[v]; ok && s.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// Volume returns the selection volume for v, or DefaultVolume.
func (a Arrangement) Volume(v pattern.Voice) float64 {
	if s, ok := a.Selections[v]; ok && s.Volume != nil {
		return *s.Volume
	}
	return DefaultVolume
}

// MeasureCount returns ceil(duration / seconds-per-measure) in 4/4.
func MeasureCount(duration, bpm float64) int {
	if duration <= 0 || bpm <= 0 {
		return 0
	}
	// round first so 60s at 80 BPM is exactly 20 and not 20.000000001
	m := duration * bpm / (transport.BeatsPerMeasure * 60)
	if r := math.Round(m); math.Abs(m-r) < 1e-9 {
		return int(r)
	}
	return int(math.Ceil(m))
}

// Handles is the set of pattern handles one arrangement started.
type Handles map[pattern.Voice]*pattern.Handle

// Voices returns the started voices in canonical order.
func (h Handles) Voices() []pattern.Voice {
	var out []pattern.Voice
	for _, v := range pattern.Voices {
		if _, ok := h[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Active counts handles not yet cancelled.
func (h Handles) Active() int {
	n := 0
	for _, handle := range h {
		if !handle.Cancelled() {
			n++
		}
	}
	return n
}

// Controller turns requests into arrangements and starts their schedulers.
// It also owns the automatic stop timer.
type Controller struct {
	catalog *maqam.Catalog

	// AfterFunc is time.AfterFunc unless replaced in tests.
	AfterFunc func(d time.Duration, f func()) Stopper

	mu       sync.Mutex
	autoStop Stopper
}

// Stopper is the part of *time.Timer the controller needs.
type Stopper interface {
	Stop() bool
}

// NewController creates a controller resolving scales through catalog.
func NewController(catalog *maqam.Catalog) *Controller {
	return &Controller{
		catalog: catalog,
		AfterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Create resolves a request. It never fails: unknown scales fall back to
// the default, missing volumes take DefaultVolume and the rest are clamped.
// A zero seed draws a random one.
func (c *Controller) Create(scaleID string, bpm, duration float64, selections []Selection, seed uint64) Arrangement {
	if seed == 0 {
		seed = rand.Uint64()
	}
	sel := make(map[pattern.Voice]Selection, len(selections))
	for _, s := range selections {
		v := DefaultVolume
		if s.Volume != nil {
			v = min(1, max(0, *s.Volume))
		}
		s.Volume = &v
		sel[s.Voice] = s
	}
	return Arrangement{
		Scale:      c.catalog.Lookup(scaleID),
		BPM:        bpm,
		Duration:   duration,
		Selections: sel,
		Measures:   MeasureCount(duration, bpm),
		Seed:       seed,
	}
}

// Start instantiates a scheduler for every enabled selection. Unknown voices
// are skipped silently; a scheduler that fails is logged and dropped.
func (c *Controller) Start(a Arrangement, tr *transport.Transport, sink pattern.Sink, visual pattern.Visual) Handles {
	rng := rand.New(rand.NewPCG(a.Seed, a.Seed^0x9e3779b97f4a7c15))
	handles := make(Handles)
	for _, v := range a.Selected() {
		sched, ok := pattern.Lookup(v)
		if !ok {
			continue
		}
		h, err := sched(pattern.Params{
			Transport: tr,
			Scale:     a.Scale,
			Measures:  a.Measures,
			BPM:       a.BPM,
			Sink:      sink,
			Visual:    visual,
			Rand:      rng,
		})
		if err != nil {
			log.Printf("Scheduler %s failed, dropping voice: %v", v, err)
			continue
		}
		handles[v] = h
	}
	return handles
}

// Stop cancels every handle. Safe on an already-cancelled set.
func (c *Controller) Stop(handles Handles) {
	for _, h := range handles {
		h.Cancel()
	}
}

// ArmAutoStop calls fn once after d, replacing any timer already armed.
func (c *Controller) ArmAutoStop(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoStop != nil {
		c.autoStop.Stop()
	}
	c.autoStop = c.AfterFunc(d, fn)
}

// DisarmAutoStop cancels the pending auto-stop, if any.
func (c *Controller) DisarmAutoStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoStop != nil {
		c.autoStop.Stop()
		c.autoStop = nil
	}
}
