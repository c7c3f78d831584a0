package pattern

import (
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/transport"
)

// Trigger probabilities and spacing per voice.
const (
	oudProbability    = 0.7
	neyProbability    = 0.6
	natureProbability = 0.4
	dafAccentChance   = 0.3
	qanunSpacing      = 0.1 // seconds between burst notes
	qanunMinRepeats   = 2
	qanunMaxRepeats   = 5
)

// DafPatterns are the 8-step rhythms the daf chooses between.
var DafPatterns = [][8]bool{
	{true, false, false, true, false, true, false, false},
	{true, false, true, false, true, false, true, false},
	{true, true, false, true, false, false, true, false},
}

// NatureSounds are the ambient one-shots.
var NatureSounds = []string{"water", "wind"}

// ScheduleOud plays a random walk over the scale on eighth notes.
func ScheduleOud(p Params) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	tr := p.Transport
	pitches := p.Scale.Pitches
	idx := p.Rand.IntN(len(pitches))
	first := true

	h := tr.ScheduleRepeating(transport.Eighth.Seconds(p.BPM), 0, p.bound(), func(at float64) {
		if p.Rand.Float64() >= oudProbability {
			return
		}
		if first {
			first = false
		} else {
			idx = walk(idx, len(pitches), p.Rand.IntN(2) == 0)
		}
		note := pitches[idx]
		p.Sink.Trigger(Trigger{Voice: Oud, Pitches: []maqam.Pitch{note}, At: at, Length: transport.Eighth})
		p.notify(string(note), at, Oud)
	})
	return newHandle(Oud, h), nil
}

// walk steps idx by one, reflecting at either end.
func walk(idx, n int, down bool) int {
	if n <= 1 {
		return 0
	}
	if down {
		idx--
	} else {
		idx++
	}
	switch {
	case idx < 0:
		return 1
	case idx >= n:
		return n - 2
	}
	return idx
}

// ScheduleNey plays long notes from the even-indexed pitches, each at most
// once per pass, starting one measure in.
func ScheduleNey(p Params) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	tr := p.Transport
	bag := newShuffleBag(p.Scale.Stride(0, 2), p)

	h := tr.ScheduleRepeating(transport.DottedHalf.Seconds(p.BPM), tr.Measures(1), p.bound(), func(at float64) {
		if p.Rand.Float64() >= neyProbability {
			return
		}
		note := bag.next()
		p.Sink.Trigger(Trigger{Voice: Ney, Pitches: []maqam.Pitch{note}, At: at, Length: transport.Half})
		p.notify(string(note), at, Ney)
	})
	return newHandle(Ney, h), nil
}

type shuffleBag struct {
	items []maqam.Pitch
	order []int
	pos   int
	p     Params
}

func newShuffleBag(items []maqam.Pitch, p Params) *shuffleBag {
	b := &shuffleBag{items: items, order: make([]int, len(items)), p: p}
	for i := range b.order {
		b.order[i] = i
	}
	b.reshuffle()
	return b
}

func (b *shuffleBag) reshuffle() {
	b.p.Rand.Shuffle(len(b.order), func(i, j int) { b.order[i], b.order[j] = b.order[j], b.order[i] })
	b.pos = 0
}

func (b *shuffleBag) next() maqam.Pitch {
	if b.pos >= len(b.order) {
		b.reshuffle()
	}
	note := b.items[b.order[b.pos]]
	b.pos++
	return note
}

// ScheduleQanun fires a burst of one random pitch every two measures.
func ScheduleQanun(p Params) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	tr := p.Transport
	pitches := p.Scale.Pitches
	stop := p.bound()

	var h *transport.Handle
	h = tr.ScheduleRepeating(transport.TwoMeasures.Seconds(p.BPM), 0, stop, func(at float64) {
		note := pitches[p.Rand.IntN(len(pitches))]
		repeats := qanunMinRepeats + p.Rand.IntN(qanunMaxRepeats-qanunMinRepeats+1)
		for i := range repeats {
			t := at + float64(i)*qanunSpacing
			if t >= stop {
				break
			}
			tr.ScheduleAt(t, func(at float64) {
				// burst notes belong to the repeating handle
				if h.Cancelled() {
					return
				}
				p.Sink.Trigger(Trigger{Voice: Qanun, Pitches: []maqam.Pitch{note}, At: at, Length: transport.Sixteenth})
				p.notify(string(note), at, Qanun)
			})
		}
	})
	return newHandle(Qanun, h), nil
}

// ScheduleDaf gates a fixed 8-step rhythm on eighth notes. The step is the
// tick count since the pattern started, so pausing never shifts the rhythm.
func ScheduleDaf(p Params) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	rhythm := DafPatterns[p.Rand.IntN(len(DafPatterns))]
	tick := 0

	h := p.Transport.ScheduleRepeating(transport.Eighth.Seconds(p.BPM), 0, p.bound(), func(at float64) {
		step := tick % len(rhythm)
		tick++
		if !rhythm[step] {
			return
		}
		sound := "regular"
		if p.Rand.Float64() < dafAccentChance {
			sound = "accent"
		}
		p.Sink.Trigger(Trigger{Voice: Daf, Sound: sound, At: at, Length: transport.ThirtySecond})
		p.notify("percussion", at, Daf)
	})
	return newHandle(Daf, h), nil
}

// ScheduleAmbient holds a tonic and fifth drone for the arrangement, released
// one measure before the end, plus a quarter-note visual pulse.
func ScheduleAmbient(p Params) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	tr := p.Transport
	pitches := p.Scale.Pitches
	drone := []maqam.Pitch{pitches[0], pitches[0]}
	if len(pitches) >= 5 {
		drone[1] = pitches[4]
	}
	stop := p.bound()
	release := max(0, stop-tr.Measures(1))

	attack := tr.ScheduleAt(0, func(at float64) {
		p.Sink.Trigger(Trigger{Voice: Ambient, Pitches: drone, At: at, Length: transport.Sustain, Action: Attack})
	})
	rel := tr.ScheduleAt(release, func(at float64) {
		p.Sink.Trigger(Trigger{Voice: Ambient, Pitches: drone, At: at, Length: transport.Sustain, Action: Release})
	})
	pulse := tr.ScheduleRepeating(transport.Quarter.Seconds(p.BPM), 0, stop, func(at float64) {
		p.notify("drone", at, Ambient)
	})
	return newHandle(Ambient, attack, rel, pulse), nil
}

// ScheduleNature occasionally plays water or wind every two measures.
func ScheduleNature(p Params) (*Handle, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	h := p.Transport.ScheduleRepeating(transport.TwoMeasures.Seconds(p.BPM), 0, p.bound(), func(at float64) {
		if p.Rand.Float64() >= natureProbability {
			return
		}
		sound := NatureSounds[p.Rand.IntN(len(NatureSounds))]
		p.Sink.Trigger(Trigger{Voice: Nature, Sound: sound, At: at, Length: transport.TwoMeasures})
		p.notify("nature", at, Nature)
	})
	return newHandle(Nature, h), nil
}
