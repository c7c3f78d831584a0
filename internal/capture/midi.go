package capture

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/satindergrewal/ambience/internal/pattern"
	"github.com/satindergrewal/ambience/internal/transport"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const ticksPerQuarter = 960

var ErrNoEvents = errors.New("capture: artifact has no events")

// General MIDI channel and program per voice. Nature has no pitched
// content and is left out of MIDI exports.
var midiVoices = map[pattern.Voice]struct {
	channel, program uint8
}{
	pattern.Oud:     {0, 24}, // nylon guitar
	pattern.Ney:     {1, 73}, // flute
	pattern.Qanun:   {2, 46}, // harp
	pattern.Daf:     {9, 0},  // percussion channel
	pattern.Ambient: {4, 89}, // warm pad
}

// Drum keys for daf sounds.
var dafKeys = map[string]uint8{
	"accent":  36,
	"regular": 38,
}

type midiEvent struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// EncodeMIDI renders the trigger log as a Standard MIDI File: a tempo and
// meter track, then one track per voice that played.
func EncodeMIDI(a Artifact) (*smf.SMF, error) {
	if len(a.Events) == 0 {
		return nil, ErrNoEvents
	}
	bpm := a.BPM
	if bpm <= 0 {
		return nil, fmt.Errorf("invalid tempo %v", bpm)
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var conductor smf.Track
	conductor.Add(0, smf.MetaTrackSequenceName(a.Title))
	conductor.Add(0, smf.MetaMeter(4, 4))
	conductor.Add(0, smf.MetaTempo(bpm))
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return nil, fmt.Errorf("add conductor track: %w", err)
	}

	end := toTicks(max(a.Duration, lastEvent(a.Events)), bpm)
	for _, v := range pattern.Voices {
		mv, ok := midiVoices[v]
		if !ok {
			continue
		}
		events := voiceEvents(a.Events, v, mv.channel, bpm, end)
		if len(events) == 0 {
			continue
		}

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(string(v)))
		if mv.channel != 9 {
			tr.Add(0, midi.ProgramChange(mv.channel, mv.program))
		}
		var at uint32
		for _, ev := range events {
			tr.Add(ev.tick-at, ev.msg)
			at = ev.tick
		}
		tr.Close(0)
		if err := sm.Add(tr); err != nil {
			return nil, fmt.Errorf("add %s track: %w", v, err)
		}
	}
	return sm, nil
}

// ExportMIDI writes the artifact's trigger log as a .mid file and returns
// its path.
func (e *Exporter) ExportMIDI(a Artifact, scaleID, mode string) (string, error) {
	sm, err := EncodeMIDI(a)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, e.FileName(scaleID, mode, "mid"))
	if err := sm.WriteFile(path); err != nil {
		return "", fmt.Errorf("write midi: %w", err)
	}
	return path, nil
}

// voiceEvents turns one voice's triggers into sorted note on/off messages.
// Held attacks end at their release, or at end when none was recorded.
func voiceEvents(triggers []pattern.Trigger, v pattern.Voice, ch uint8, bpm float64, end uint32) []midiEvent {
	var out []midiEvent
	var held []uint8
	var heldAt uint32

	note := func(key, vel uint8, on, off uint32) {
		if off <= on {
			off = on + 1
		}
		out = append(out,
			midiEvent{tick: on, msg: midi.NoteOn(ch, key, vel)},
			midiEvent{tick: off, off: true, msg: midi.NoteOff(ch, key)})
	}

	for _, t := range triggers {
		if t.Voice != v {
			continue
		}
		on := toTicks(t.At, bpm)
		if v == pattern.Daf {
			key, ok := dafKeys[t.Sound]
			if !ok {
				continue
			}
			vel := uint8(80)
			if t.Sound == "accent" {
				vel = 110
			}
			note(key, vel, on, on+toTicks(t.Length.Seconds(bpm), bpm))
			continue
		}

		keys := midiKeys(t)
		switch t.Action {
		case pattern.Attack:
			held, heldAt = keys, on
		case pattern.Release:
			for _, k := range held {
				note(k, 70, heldAt, on)
			}
			held = nil
		default:
			for _, k := range keys {
				note(k, 90, on, on+toTicks(t.Length.Seconds(bpm), bpm))
			}
		}
	}
	for _, k := range held {
		note(k, 70, heldAt, end)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].tick != out[j].tick {
			return out[i].tick < out[j].tick
		}
		return out[i].off && !out[j].off
	})
	return out
}

// midiKeys returns the distinct keys of t's pitches in order.
func midiKeys(t pattern.Trigger) []uint8 {
	var keys []uint8
	for _, p := range t.Pitches {
		n, err := p.MIDI()
		if err != nil {
			log.Printf("MIDI export skipped %s pitch %q: %v", t.Voice, p, err)
			continue
		}
		if !slices.Contains(keys, uint8(n)) {
			keys = append(keys, uint8(n))
		}
	}
	return keys
}

func toTicks(seconds, bpm float64) uint32 {
	if seconds <= 0 {
		return 0
	}
	return uint32(math.Round(seconds / transport.SecondsPerBeat(bpm) * ticksPerQuarter))
}

func lastEvent(events []pattern.Trigger) float64 {
	last := 0.0
	for _, t := range events {
		last = max(last, t.At)
	}
	return last
}
