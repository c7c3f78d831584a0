package arrangement

import (
	"sort"

	"github.com/satindergrewal/ambience/internal/pattern"
)

// Preset is a named starting point for a request.
type Preset struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Scale       string      `json:"scale"`
	BPM         float64     `json:"tempo"`
	Duration    float64     `json:"duration"`
	Selections  []Selection `json:"instruments"`

	// Mix settings applied to the voice bank, each in [0,1].
	MasterVolume float64 `json:"master_volume"`
	Reverb       float64 `json:"reverb"`
	Delay        float64 `json:"delay"`
}

// Presets are the built-in moods.
var Presets = map[string]Preset{
	"meditation": {
		Name:        "meditation",
		Description: "Slow hijaz with ney over a drone and water",
		Scale:       "hijaz",
		BPM:         60,
		Duration:    180,
		Selections: []Selection{
			{Voice: pattern.Ney, Enabled: true, Volume: Vol(0.8)},
			{Voice: pattern.Ambient, Enabled: true, Volume: Vol(0.7)},
			{Voice: pattern.Nature, Enabled: true, Volume: Vol(0.5)},
		},
		MasterVolume: 0.6,
		Reverb:       0.7,
		Delay:        0.3,
	},
	"relaxation": {
		Name:        "relaxation",
		Description: "Bayati oud and ney at an easy pace",
		Scale:       "bayati",
		BPM:         70,
		Duration:    120,
		Selections: []Selection{
			{Voice: pattern.Oud, Enabled: true, Volume: Vol(0.6)},
			{Voice: pattern.Ney, Enabled: true, Volume: Vol(0.7)},
			{Voice: pattern.Ambient, Enabled: true, Volume: Vol(0.5)},
		},
		MasterVolume: 0.65,
		Reverb:       0.5,
		Delay:        0.4,
	},
	"uplifting": {
		Name:        "uplifting",
		Description: "Bright rast with qanun bursts and daf",
		Scale:       "rast",
		BPM:         90,
		Duration:    90,
		Selections: []Selection{
			{Voice: pattern.Oud, Enabled: true, Volume: Vol(0.8)},
			{Voice: pattern.Qanun, Enabled: true, Volume: Vol(0.7)},
			{Voice: pattern.Daf, Enabled: true, Volume: Vol(0.6)},
		},
		MasterVolume: 0.7,
		Reverb:       0.3,
		Delay:        0.2,
	},
}

// PresetNames returns preset names sorted.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
