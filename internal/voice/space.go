package voice

import (
	"time"

	"github.com/satindergrewal/ambience/internal/audio"
)

// echo is a feedback delay line over stereo samples.
type echo struct {
	buf      [][2]float64
	pos      int
	feedback float64
}

func newEcho(d time.Duration, feedback float64) *echo {
	return &echo{
		buf:      make([][2]float64, max(1, audio.Format.SampleRate.N(d))),
		feedback: feedback,
	}
}

// process returns the sample written one line length ago and feeds in
// back into the line.
func (e *echo) process(in [2]float64) [2]float64 {
	out := e.buf[e.pos]
	e.buf[e.pos] = [2]float64{in[0] + out[0]*e.feedback, in[1] + out[1]*e.feedback}
	e.pos = (e.pos + 1) % len(e.buf)
	return out
}

func (e *echo) reset() {
	clear(e.buf)
	e.pos = 0
}

const (
	reverbGain = 0.25
	delayGain  = 0.5
	delayTime  = 375 * time.Millisecond
)

// space adds a comb-filter reverb and a single echo to the mix. Both
// amounts are in [0,1]; at zero the mix passes through untouched.
type space struct {
	reverb, delay float64
	combs         []*echo
	tap           *echo
}

func newSpace() *space {
	return &space{
		combs: []*echo{
			newEcho(29700*time.Microsecond, 0.72),
			newEcho(37100*time.Microsecond, 0.70),
			newEcho(41100*time.Microsecond, 0.68),
			newEcho(43700*time.Microsecond, 0.66),
		},
		tap: newEcho(delayTime, 0.35),
	}
}

func (s *space) set(reverb, delay float64) {
	s.reverb = min(1, max(0, reverb))
	s.delay = min(1, max(0, delay))
	if s.reverb == 0 && s.delay == 0 {
		s.reset()
	}
}

func (s *space) reset() {
	for _, c := range s.combs {
		c.reset()
	}
	s.tap.reset()
}

func (s *space) process(samples [][2]float64) {
	if s.reverb == 0 && s.delay == 0 {
		return
	}
	for i, dry := range samples {
		var wet [2]float64
		for _, c := range s.combs {
			o := c.process(dry)
			wet[0] += o[0]
			wet[1] += o[1]
		}
		d := s.tap.process(dry)
		samples[i][0] = dry[0] + s.reverb*reverbGain*wet[0] + s.delay*delayGain*d[0]
		samples[i][1] = dry[1] + s.reverb*reverbGain*wet[1] + s.delay*delayGain*d[1]
	}
}
