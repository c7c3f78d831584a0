package maqam

import (
	"math/rand/v2"
	"sort"
	"strings"
)

// DefaultID is the scale returned for any unknown id.
const DefaultID = "rast"

// Pitch is a scientific pitch name such as "C4", "Bb4" or "F#5".
type Pitch string

// Scale is one maqam: an octave-duplicated pitch sequence plus its interval steps.
type Scale struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Pitches     []Pitch `yaml:"pitches"`
	Intervals   []int   `yaml:"intervals"`
	Tonic       Pitch   `yaml:"tonic"`
	Character   string  `yaml:"character"`
}

// Len returns the number of pitches in the sequence.
func (s Scale) Len() int {
	return len(s.Pitches)
}

// Run returns length pitches starting at start, wrapping around the sequence.
func (s Scale) Run(start, length int) []Pitch {
	n := len(s.Pitches)
	if n == 0 || length <= 0 {
		return nil
	}
	out := make([]Pitch, length)
	for i := range out {
		idx := (start + i) % n
		if idx < 0 {
			idx += n
		}
		out[i] = s.Pitches[idx]
	}
	return out
}

// Stride returns every step-th pitch beginning at start (no wrap).
// Stride(0, 2) is the even-indexed subset used by sustained voices.
func (s Scale) Stride(start, step int) []Pitch {
	if step <= 0 {
		step = 1
	}
	var out []Pitch
	for i := start; i >= 0 && i < len(s.Pitches); i += step {
		out = append(out, s.Pitches[i])
	}
	return out
}

// RandomPitches draws count pitches uniformly with replacement.
func (s Scale) RandomPitches(rng *rand.Rand, count int) []Pitch {
	if len(s.Pitches) == 0 || count <= 0 {
		return nil
	}
	out := make([]Pitch, count)
	for i := range out {
		out[i] = s.Pitches[rng.IntN(len(s.Pitches))]
	}
	return out
}

// Builtin holds the maqamat shipped with the service. Pitches are 12-TET
// approximations; quarter tones are rounded to the nearest semitone.
var Builtin = map[string]Scale{
	"rast": {
		ID:          "rast",
		Name:        "Rast",
		Description: "Peaceful and balanced scale, similar to Western major",
		Pitches: []Pitch{"C4", "D4", "E4", "F4", "G4", "A4", "Bb4", "C5",
			"D5", "E5", "F5", "G5", "A5", "Bb5", "C6"},
		Intervals: []int{2, 2, 1, 2, 2, 1, 2},
		Tonic:     "C4",
		Character: "peaceful",
	},
	"hijaz": {
		ID:          "hijaz",
		Name:        "Hijaz",
		Description: "Mystical and spiritual scale with distinctive Middle Eastern sound",
		Pitches: []Pitch{"D4", "Eb4", "F#4", "G4", "A4", "Bb4", "C5", "D5",
			"Eb5", "F#5", "G5", "A5", "Bb5", "C6", "D6"},
		Intervals: []int{1, 3, 1, 2, 1, 2, 2},
		Tonic:     "D4",
		Character: "meditative",
	},
	"saba": {
		ID:          "saba",
		Name:        "Saba",
		Description: "Melancholic and contemplative scale",
		Pitches: []Pitch{"D4", "Eb4", "F4", "Gb4", "A4", "Bb4", "C5", "D5",
			"Eb5", "F5", "Gb5", "A5", "Bb5", "C6", "D6"},
		Intervals: []int{1, 2, 1, 3, 1, 2, 2},
		Tonic:     "D4",
		Character: "melancholic",
	},
	"nahawand": {
		ID:          "nahawand",
		Name:        "Nahawand",
		Description: "Emotional scale similar to Western minor",
		Pitches: []Pitch{"C4", "D4", "Eb4", "F4", "G4", "Ab4", "Bb4", "C5",
			"D5", "Eb5", "F5", "G5", "Ab5", "Bb5", "C6"},
		Intervals: []int{2, 1, 2, 2, 1, 2, 2},
		Tonic:     "C4",
		Character: "emotional",
	},
	"bayati": {
		ID:          "bayati",
		Name:        "Bayati",
		Description: "Traditional scale often used in devotional music",
		Pitches: []Pitch{"D4", "Eb4", "F4", "G4", "A4", "Bb4", "C5", "D5",
			"Eb5", "F5", "G5", "A5", "Bb5", "C6", "D6"},
		Intervals: []int{1, 2, 2, 2, 1, 2, 2},
		Tonic:     "D4",
		Character: "traditional",
	},
}

// Catalog maps scale ids to scales. It is read-only after construction.
type Catalog struct {
	scales map[string]Scale
}

// NewCatalog returns a catalog holding the built-in maqamat.
func NewCatalog() *Catalog {
	c := &Catalog{scales: make(map[string]Scale, len(Builtin))}
	for id, s := range Builtin {
		c.scales[id] = s
	}
	return c
}

// Lookup returns the scale for id. Unknown ids fall back to rast.
func (c *Catalog) Lookup(id string) Scale {
	if s, ok := c.scales[normalizeID(id)]; ok {
		return s
	}
	return c.scales[DefaultID]
}

// Has reports whether id names a scale in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.scales[normalizeID(id)]
	return ok
}

// IDs returns all scale ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.scales))
	for id := range c.scales {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RandomPitches draws count pitches from the scale named by id.
func (c *Catalog) RandomPitches(id string, count int, rng *rand.Rand) []Pitch {
	return c.Lookup(id).RandomPitches(rng, count)
}

// ContiguousRun returns length pitches from the scale named by id,
// starting at startIndex and wrapping modulo the sequence length.
func (c *Catalog) ContiguousRun(id string, startIndex, length int) []Pitch {
	return c.Lookup(id).Run(startIndex, length)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
