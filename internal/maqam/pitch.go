package maqam

import (
	"fmt"
	"math"
	"strconv"
)

var noteOffsets = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// MIDI returns the MIDI note number for the pitch (C4 = 60).
func (p Pitch) MIDI() (int, error) {
	s := string(p)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid pitch %q", s)
	}
	base, ok := noteOffsets[s[0]]
	if !ok {
		return 0, fmt.Errorf("invalid pitch letter in %q", s)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			base++
		} else {
			base--
		}
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in %q: %w", s, err)
	}
	note := (octave+1)*12 + base
	if note < 0 || note > 127 {
		return 0, fmt.Errorf("pitch %q out of MIDI range", s)
	}
	return note, nil
}

// Frequency returns the equal-tempered frequency in Hz (A4 = 440).
func (p Pitch) Frequency() (float64, error) {
	n, err := p.MIDI()
	if err != nil {
		return 0, err
	}
	return 440 * math.Pow(2, float64(n-69)/12), nil
}
