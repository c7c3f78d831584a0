package voice

import (
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/pattern"
)

// Instrument describes how one voice is sourced and played.
type Instrument struct {
	Voice pattern.Voice
	// Files are tried in order inside the assets directory.
	Files []string
	// BasePitch is the pitch the recording sounds at; pitched triggers are
	// resampled relative to it.
	BasePitch maqam.Pitch
	Pitched   bool
	Loop      bool    // loop the sample while a note is held
	Duration  float64 // nominal sample length in seconds
	BPM       float64 // tempo the sample was recorded at, 0 if free time
}

// Instruments holds the per-voice sample metadata.
var Instruments = map[pattern.Voice]Instrument{
	pattern.Oud:     {Voice: pattern.Oud, Files: []string{"oud.mp3", "oud.wav"}, BasePitch: "C4", Pitched: true, Loop: true, Duration: 8, BPM: 80},
	pattern.Ney:     {Voice: pattern.Ney, Files: []string{"ney.mp3", "ney.wav"}, BasePitch: "C4", Pitched: true, Loop: true, Duration: 6, BPM: 80},
	pattern.Qanun:   {Voice: pattern.Qanun, Files: []string{"qanun.mp3", "qanun.wav"}, BasePitch: "C4", Pitched: true, Loop: true, Duration: 7, BPM: 80},
	pattern.Daf:     {Voice: pattern.Daf, Files: []string{"daf.mp3", "daf.wav"}, Loop: true, Duration: 4, BPM: 80},
	pattern.Ambient: {Voice: pattern.Ambient, Files: []string{"ambient.mp3", "ambient.wav"}, BasePitch: "C4", Pitched: true, Loop: true, Duration: 30},
	pattern.Nature:  {Voice: pattern.Nature, Files: []string{"nature.mp3", "nature.wav"}, Loop: true, Duration: 20},
}
