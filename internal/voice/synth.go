package voice

import (
	"math"
	"math/rand/v2"

	"github.com/gopxl/beep"
	"github.com/satindergrewal/ambience/internal/audio"
	"github.com/satindergrewal/ambience/internal/pattern"
)

var sampleRate = float64(audio.SampleRate)

// gate shapes a source with a linear attack, an optional fixed length and
// a linear release. A gate with length < 0 holds until Release.
type gate struct {
	src       beep.Streamer
	pos       int
	length    int
	attack    int
	release   int
	releaseAt int
	done      bool
}

func newGate(src beep.Streamer, length, attack, release float64) *gate {
	g := &gate{
		src:       src,
		length:    -1,
		attack:    max(1, int(attack*sampleRate)),
		release:   max(1, int(release*sampleRate)),
		releaseAt: -1,
	}
	if length >= 0 {
		g.length = int(length * sampleRate)
	}
	return g
}

// Release starts the release ramp from the current position.
func (g *gate) Release() {
	if g.releaseAt < 0 {
		g.releaseAt = g.pos
	}
}

func (g *gate) Stream(samples [][2]float64) (n int, ok bool) {
	if g.done {
		return 0, false
	}
	n, ok = g.src.Stream(samples)
	for i := 0; i < n; i++ {
		if g.length >= 0 && g.releaseAt < 0 && g.pos >= g.length {
			g.releaseAt = g.pos
		}
		env := 1.0
		if g.pos < g.attack {
			env = float64(g.pos) / float64(g.attack)
		}
		if g.releaseAt >= 0 {
			r := 1 - float64(g.pos-g.releaseAt)/float64(g.release)
			if r <= 0 {
				clear(samples[i:n])
				g.done = true
				return i, i > 0
			}
			env *= r
		}
		samples[i][0] *= env
		samples[i][1] *= env
		g.pos++
	}
	if !ok {
		g.done = true
	}
	return n, ok
}

func (g *gate) Err() error { return nil }

// tone is an endless sum of harmonics with exponential decay, plus an
// optional breath noise component.
type tone struct {
	freq     float64
	partials []float64
	decay    float64 // per second, 0 for sustained
	noise    float64
	pos      int
	rng      *rand.Rand
	norm     float64
}

func newTone(freq float64, partials []float64, decay, noise float64, rng *rand.Rand) *tone {
	sum := noise
	for _, p := range partials {
		sum += p
	}
	if sum == 0 {
		sum = 1
	}
	return &tone{freq: freq, partials: partials, decay: decay, noise: noise, rng: rng, norm: 1 / sum}
}

func (t *tone) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		sec := float64(t.pos) / sampleRate
		v := 0.0
		for k, amp := range t.partials {
			v += amp * math.Sin(2*math.Pi*t.freq*float64(k+1)*sec)
		}
		if t.noise > 0 {
			v += t.noise * (t.rng.Float64()*2 - 1)
		}
		v *= t.norm
		if t.decay > 0 {
			v *= math.Exp(-t.decay * sec)
		}
		samples[i][0] = v
		samples[i][1] = v
		t.pos++
	}
	return len(samples), true
}

func (t *tone) Err() error { return nil }

// noise is low-passed white noise with an optional slow amplitude swell.
type noise struct {
	rng    *rand.Rand
	alpha  float64 // one-pole smoothing, closer to 1 is darker
	decay  float64
	swell  float64 // Hz, 0 for none
	last   float64
	pos    int
	volume float64
}

func (s *noise) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		sec := float64(s.pos) / sampleRate
		white := s.rng.Float64()*2 - 1
		s.last = s.alpha*s.last + (1-s.alpha)*white
		v := s.last * s.volume
		if s.decay > 0 {
			v *= math.Exp(-s.decay * sec)
		}
		if s.swell > 0 {
			v *= 0.6 + 0.4*math.Sin(2*math.Pi*s.swell*sec)
		}
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
	}
	return len(samples), true
}

func (s *noise) Err() error { return nil }

// synthesize builds the synthesized source for one voice at freq (pitched
// voices) or for sound (percussion and nature).
func synthesize(v pattern.Voice, freq float64, sound string, rng *rand.Rand) beep.Streamer {
	switch v {
	case pattern.Oud:
		return newTone(freq, []float64{1, 0.5, 0.35, 0.2, 0.1}, 4, 0, rng)
	case pattern.Qanun:
		return newTone(freq, []float64{1, 0.6, 0.3, 0.25}, 6, 0, rng)
	case pattern.Ney:
		return newTone(freq, []float64{1, 0.15, 0.05}, 0, 0.08, rng)
	case pattern.Ambient:
		return newTone(freq, []float64{1, 0.3}, 0, 0, rng)
	case pattern.Daf:
		if sound == "accent" {
			return &noise{rng: rng, alpha: 0.9, decay: 12, volume: 2.4}
		}
		return &noise{rng: rng, alpha: 0.6, decay: 25, volume: 1.2}
	case pattern.Nature:
		if sound == "water" {
			return &noise{rng: rng, alpha: 0.5, swell: 3, volume: 0.5}
		}
		return &noise{rng: rng, alpha: 0.97, swell: 0.25, volume: 2}
	}
	return beep.Silence(0)
}

// envelope returns attack and release times in seconds for a voice.
func envelope(v pattern.Voice) (attack, release float64) {
	switch v {
	case pattern.Oud, pattern.Qanun:
		return 0.005, 0.15
	case pattern.Daf:
		return 0.001, 0.08
	case pattern.Ney:
		return 0.12, 0.4
	case pattern.Ambient:
		return 2, 3
	case pattern.Nature:
		return 1, 1.5
	}
	return 0.01, 0.1
}
