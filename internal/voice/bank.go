package voice

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/satindergrewal/ambience/internal/audio"
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/pattern"
)

// Modes reported by Bank.Mode and used in export file names.
const (
	ModeSampled     = "sampled"
	ModeSynthesized = "synthesized"
)

// resampleQuality is passed to beep.ResampleRatio for pitch shifting.
const resampleQuality = 4

// minHit keeps very short notes audible.
const minHit = 0.12

// fallbackTempo applies when a trigger arrives without a tempo.
const fallbackTempo = 80

// Bank is the live instrument mixer. It satisfies beep.Streamer and never
// ends: with nothing playing it streams silence.
type Bank struct {
	mode    string
	samples map[pattern.Voice]*beep.Buffer

	mu     sync.Mutex
	mixer  *beep.Mixer
	held   map[pattern.Voice][]*gate
	master float64
	space  *space
	rng    *rand.Rand
}

// NewSynthBank returns a bank that synthesizes every voice.
func NewSynthBank() *Bank {
	return &Bank{
		mode:   ModeSynthesized,
		mixer:  &beep.Mixer{},
		held:   make(map[pattern.Voice][]*gate),
		master: 1,
		space:  newSpace(),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// LoadBank decodes one sample per voice from dir. Voices whose file is
// missing or unreadable are left unloaded; it is an error only when no
// voice loads at all.
func LoadBank(dir string) (*Bank, error) {
	b := NewSynthBank()
	b.mode = ModeSampled
	b.samples = make(map[pattern.Voice]*beep.Buffer)

	for _, v := range pattern.Voices {
		inst := Instruments[v]
		for _, name := range inst.Files {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			buf, err := audio.LoadSample(path)
			if err != nil {
				log.Printf("Sample %s skipped: %v", name, err)
				continue
			}
			b.samples[v] = buf
			break
		}
	}

	if len(b.samples) == 0 {
		return b, fmt.Errorf("no samples found in %s", dir)
	}
	if len(b.samples) < len(pattern.Voices) {
		log.Printf("Loaded %d/%d voice samples from %s", len(b.samples), len(pattern.Voices), dir)
	} else {
		log.Printf("Loaded all voice samples from %s", dir)
	}
	return b, nil
}

// Mode returns ModeSampled or ModeSynthesized.
func (b *Bank) Mode() string {
	return b.mode
}

// IsLoaded reports whether v can sound.
func (b *Bank) IsLoaded(v pattern.Voice) bool {
	if b.mode == ModeSynthesized {
		_, ok := pattern.Lookup(v)
		return ok
	}
	_, ok := b.samples[v]
	return ok
}

// Loaded returns the voices that can sound, in canonical order.
func (b *Bank) Loaded() []pattern.Voice {
	var out []pattern.Voice
	for _, v := range pattern.Voices {
		if b.IsLoaded(v) {
			out = append(out, v)
		}
	}
	return out
}

// SetMasterVolume scales the whole mix. Values are clamped to [0,1].
func (b *Bank) SetMasterVolume(v float64) {
	b.mu.Lock()
	b.master = min(1, max(0, v))
	b.mu.Unlock()
}

// SetEffects sets the reverb and delay amounts, each clamped to [0,1].
func (b *Bank) SetEffects(reverb, delay float64) {
	b.mu.Lock()
	b.space.set(reverb, delay)
	b.mu.Unlock()
}

// Trigger starts, or for a Release ends, the sound described by t.
func (b *Bank) Trigger(t pattern.Trigger, opts pattern.Options) {
	if !b.IsLoaded(t.Voice) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if t.Action == pattern.Release {
		for _, g := range b.held[t.Voice] {
			g.Release()
		}
		delete(b.held, t.Voice)
		return
	}

	tempo := opts.Tempo
	if tempo <= 0 {
		tempo = fallbackTempo
	}
	length := -1.0
	if t.Action == pattern.AttackRelease {
		length = max(minHit, t.Length.Seconds(tempo))
	}
	attack, release := envelope(t.Voice)

	var sources []beep.Streamer
	if len(t.Pitches) == 0 {
		sources = append(sources, b.source(t.Voice, 0, t.Sound, opts.Loop))
	}
	for _, p := range t.Pitches {
		freq, err := p.Frequency()
		if err != nil {
			log.Printf("Voice %s: %v", t.Voice, err)
			continue
		}
		sources = append(sources, b.source(t.Voice, freq, t.Sound, opts.Loop))
	}
	if len(sources) == 0 {
		return
	}

	volume := opts.Volume / float64(len(sources))
	for _, src := range sources {
		g := newGate(src, length, attack, release)
		if t.Action == pattern.Attack {
			b.held[t.Voice] = append(b.held[t.Voice], g)
		}
		b.mixer.Add(&effects.Gain{Streamer: g, Gain: volume - 1})
	}
}

// source returns the raw streamer for one note. Sampled pitched voices are
// resampled relative to the instrument's base pitch.
func (b *Bank) source(v pattern.Voice, freq float64, sound string, loop bool) beep.Streamer {
	buf, ok := b.samples[v]
	if !ok {
		return synthesize(v, freq, sound, b.rng)
	}
	inst := Instruments[v]
	var s beep.Streamer = buf.Streamer(0, buf.Len())
	if loop || inst.Loop {
		s = beep.Loop(-1, buf.Streamer(0, buf.Len()))
	}
	if inst.Pitched && freq > 0 {
		if ratio, err := pitchRatio(freq, inst.BasePitch); err == nil {
			s = beep.ResampleRatio(resampleQuality, ratio, s)
		}
	}
	return s
}

func pitchRatio(freq float64, base maqam.Pitch) (float64, error) {
	if base == "" {
		return 1, nil
	}
	bf, err := base.Frequency()
	if err != nil {
		return 0, err
	}
	if bf <= 0 {
		return 0, errors.New("base pitch has no frequency")
	}
	return freq / bf, nil
}

// Silence drops every playing sound at once.
func (b *Bank) Silence() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mixer.Clear()
	b.space.reset()
	clear(b.held)
}

// Playing returns the number of sounds in the mix.
func (b *Bank) Playing() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mixer.Len()
}

// Stream mixes every playing sound into samples.
func (b *Bank) Stream(samples [][2]float64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(samples)
	b.mixer.Stream(samples)
	b.space.process(samples)
	if b.master != 1 {
		for i := range samples {
			samples[i][0] *= b.master
			samples[i][1] *= b.master
		}
	}
	return len(samples), true
}

func (b *Bank) Err() error { return nil }
