package capture

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/satindergrewal/ambience/internal/audio"
	"github.com/satindergrewal/ambience/internal/pattern"
)

// LoopReserve is the tail, in seconds, kept out of the loop region so the
// loop point can be crossfaded.
const LoopReserve = 0.5

// Artifact is one finished take. It is superseded by the next one.
type Artifact struct {
	SessionID string
	Title     string
	Scale     string
	Mode      string
	BPM       float64
	Duration  float64 // requested length in seconds

	Signal []int16 // interleaved stereo PCM at audio.Format
	Events []pattern.Trigger

	LoopStart float64
	LoopEnd   float64
	CreatedAt time.Time
}

// Finalize wraps a captured signal. The loop region covers the whole
// requested duration minus LoopReserve, never going negative.
func Finalize(signal []int16, duration float64) Artifact {
	return Artifact{
		Duration:  duration,
		Signal:    signal,
		LoopStart: 0,
		LoopEnd:   max(0, duration-LoopReserve),
		CreatedAt: time.Now(),
	}
}

// Buffer returns the signal as a beep buffer.
func (a Artifact) Buffer() *beep.Buffer {
	return audio.PCMBuffer(a.Signal)
}

// Length is how long the captured signal plays.
func (a Artifact) Length() time.Duration {
	return audio.PCMDuration(a.Signal)
}
