package maqam

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pitch sequence length bounds for loaded scales.
const (
	MinPitches = 8
	MaxPitches = 15
)

type scaleFile struct {
	Scales []Scale `yaml:"scales"`
}

// LoadYAML merges maqam definitions from a YAML file into the catalog.
// Entries with the same id as an existing scale replace it.
//
//	scales:
//	  - id: kurd
//	    name: Kurd
//	    pitches: [D4, Eb4, F4, G4, A4, Bb4, C5, D5]
//	    intervals: [1, 2, 2, 2, 1, 2, 2]
//	    tonic: D4
func (c *Catalog) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scales file: %w", err)
	}
	var f scaleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse scales file %s: %w", path, err)
	}

	// Nothing is merged unless every entry is valid.
	loaded := make([]Scale, 0, len(f.Scales))
	for i, s := range f.Scales {
		s.ID = normalizeID(s.ID)
		if s.ID == "" {
			return fmt.Errorf("scale %d in %s: missing id", i, path)
		}
		if n := len(s.Pitches); n < MinPitches || n > MaxPitches {
			return fmt.Errorf("scale %q in %s: %d pitches, want %d to %d", s.ID, path, n, MinPitches, MaxPitches)
		}
		for _, p := range s.Pitches {
			if _, err := p.MIDI(); err != nil {
				return fmt.Errorf("scale %q in %s: %w", s.ID, path, err)
			}
		}
		if s.Tonic == "" {
			s.Tonic = s.Pitches[0]
		}
		if s.Name == "" {
			s.Name = s.ID
		}
		loaded = append(loaded, s)
	}
	for _, s := range loaded {
		c.scales[s.ID] = s
	}
	return nil
}
