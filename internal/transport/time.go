package transport

import (
	"fmt"
	"math"
)

// BeatsPerMeasure is fixed; every arrangement is in 4/4.
const BeatsPerMeasure = 4

// SecondsPerBeat returns 60/bpm.
func SecondsPerBeat(bpm float64) float64 {
	return 60 / bpm
}

// SecondsPerMeasure returns 4 * 60/bpm.
func SecondsPerMeasure(bpm float64) float64 {
	return BeatsPerMeasure * SecondsPerBeat(bpm)
}

// Notation is a note-length token: "8n" is an eighth note, "2n." a dotted
// half, "2m" two measures.
type Notation string

const (
	TwoMeasures  Notation = "2m"
	Measure      Notation = "1m"
	Half         Notation = "2n"
	DottedHalf   Notation = "2n."
	Quarter      Notation = "4n"
	Eighth       Notation = "8n"
	Sixteenth    Notation = "16n"
	ThirtySecond Notation = "32n"
	Sustain      Notation = "sustain" // held until an explicit release
)

// Beats returns the length in beats. Unknown tokens and Sustain are 0.
func (n Notation) Beats() float64 {
	s := string(n)
	if s == "" || n == Sustain {
		return 0
	}
	dotted := false
	if s[len(s)-1] == '.' {
		dotted = true
		s = s[:len(s)-1]
	}
	var (
		count int
		unit  byte
	)
	if _, err := fmt.Sscanf(s, "%d%c", &count, &unit); err != nil || count <= 0 {
		return 0
	}
	var beats float64
	switch unit {
	case 'm':
		beats = float64(count * BeatsPerMeasure)
	case 'n':
		beats = BeatsPerMeasure / float64(count)
	default:
		return 0
	}
	if dotted {
		beats *= 1.5
	}
	return beats
}

// Seconds returns the length in seconds at bpm.
func (n Notation) Seconds(bpm float64) float64 {
	return n.Beats() * SecondsPerBeat(bpm)
}

// Position is a musical position in measures, beats and sixteenths.
type Position struct {
	Measures   int
	Beats      int
	Sixteenths float64
}

// PositionAt converts seconds to a musical position at bpm.
func PositionAt(seconds, bpm float64) Position {
	if seconds <= 0 || bpm <= 0 {
		return Position{}
	}
	totalBeats := seconds / SecondsPerBeat(bpm)
	measures := int(totalBeats / BeatsPerMeasure)
	rem := totalBeats - float64(measures*BeatsPerMeasure)
	beats := int(rem)
	six := (rem - float64(beats)) * 4
	// snap float noise so 4s at 60 BPM reads 1:0:0 and not 0:3:3.9999
	if math.Abs(six-math.Round(six)) < 1e-9 {
		six = math.Round(six)
	}
	if six >= 4 {
		six -= 4
		beats++
	}
	if beats >= BeatsPerMeasure {
		beats -= BeatsPerMeasure
		measures++
	}
	return Position{Measures: measures, Beats: beats, Sixteenths: six}
}

// Seconds converts the position to seconds at bpm.
func (p Position) Seconds(bpm float64) float64 {
	beats := float64(p.Measures*BeatsPerMeasure+p.Beats) + p.Sixteenths/4
	return beats * SecondsPerBeat(bpm)
}

// String formats the position as "measures:beats:sixteenths".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%g", p.Measures, p.Beats, p.Sixteenths)
}
