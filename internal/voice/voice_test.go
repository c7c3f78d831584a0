package voice

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/satindergrewal/ambience/internal/audio"
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/pattern"
	"github.com/satindergrewal/ambience/internal/transport"
)

func stream(b *Bank, d time.Duration) [][2]float64 {
	buf := make([][2]float64, audio.Format.SampleRate.N(d))
	b.Stream(buf)
	return buf
}

func peak(samples [][2]float64) float64 {
	p := 0.0
	for _, s := range samples {
		p = math.Max(p, math.Abs(s[0]))
	}
	return p
}

// --- Synthesized bank ---

func TestSynthBankLoadsEveryVoice(t *testing.T) {
	b := NewSynthBank()
	if b.Mode() != ModeSynthesized {
		t.Errorf("Mode = %q, want synthesized", b.Mode())
	}
	if got := len(b.Loaded()); got != len(pattern.Voices) {
		t.Errorf("Loaded = %d voices, want %d", got, len(pattern.Voices))
	}
	if b.IsLoaded("kamancheh") {
		t.Error("unknown voice reported loaded")
	}
}

func TestSilentWhenIdle(t *testing.T) {
	b := NewSynthBank()
	if p := peak(stream(b, 50*time.Millisecond)); p != 0 {
		t.Errorf("idle peak = %v, want 0", p)
	}
}

func TestNoteSoundsThenEnds(t *testing.T) {
	b := NewSynthBank()
	b.Trigger(pattern.Trigger{Voice: pattern.Oud, Pitches: []maqam.Pitch{"A4"}, Length: transport.Eighth},
		pattern.Options{Volume: 0.7, Tempo: 120})
	if b.Playing() != 1 {
		t.Fatalf("Playing = %d, want 1", b.Playing())
	}
	if p := peak(stream(b, 100*time.Millisecond)); p == 0 {
		t.Error("oud note is silent")
	}
	stream(b, time.Second)
	if b.Playing() != 0 {
		t.Errorf("Playing = %d after note length, want 0", b.Playing())
	}
}

func TestPercussionAndNature(t *testing.T) {
	b := NewSynthBank()
	for _, tr := range []pattern.Trigger{
		{Voice: pattern.Daf, Sound: "accent", Length: transport.ThirtySecond},
		{Voice: pattern.Daf, Sound: "regular", Length: transport.ThirtySecond},
		{Voice: pattern.Nature, Sound: "water", Length: transport.TwoMeasures},
		{Voice: pattern.Nature, Sound: "wind", Length: transport.TwoMeasures},
	} {
		b.Trigger(tr, pattern.Options{Volume: 0.5, Tempo: 80})
	}
	if b.Playing() != 4 {
		t.Errorf("Playing = %d, want 4", b.Playing())
	}
	if p := peak(stream(b, 200*time.Millisecond)); p == 0 {
		t.Error("percussion and nature are silent")
	}
}

func TestDroneHeldUntilRelease(t *testing.T) {
	b := NewSynthBank()
	drone := []maqam.Pitch{"D4", "A4"}
	b.Trigger(pattern.Trigger{Voice: pattern.Ambient, Pitches: drone, Length: transport.Sustain, Action: pattern.Attack},
		pattern.Options{Volume: 0.7, Loop: true, Tempo: 60})
	if b.Playing() != 2 {
		t.Fatalf("Playing = %d, want 2 drone partials", b.Playing())
	}
	stream(b, 5*time.Second)
	if b.Playing() != 2 {
		t.Fatalf("drone ended before release")
	}
	b.Trigger(pattern.Trigger{Voice: pattern.Ambient, Pitches: drone, Action: pattern.Release}, pattern.Options{})
	stream(b, 4*time.Second)
	if b.Playing() != 0 {
		t.Errorf("Playing = %d after release, want 0", b.Playing())
	}
}

func TestSilenceClearsMix(t *testing.T) {
	b := NewSynthBank()
	b.Trigger(pattern.Trigger{Voice: pattern.Ambient, Pitches: []maqam.Pitch{"C4"}, Action: pattern.Attack},
		pattern.Options{Volume: 1})
	b.Silence()
	if b.Playing() != 0 {
		t.Errorf("Playing = %d after Silence, want 0", b.Playing())
	}
}

func TestMasterVolumeClamped(t *testing.T) {
	b := NewSynthBank()
	b.SetMasterVolume(3)
	if b.master != 1 {
		t.Errorf("master = %v, want 1", b.master)
	}
	b.SetMasterVolume(-1)
	if b.master != 0 {
		t.Errorf("master = %v, want 0", b.master)
	}
}

// --- Sampled bank ---

func writeTone(t *testing.T, path string, freq float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	src := beep.Take(audio.Format.SampleRate.N(200*time.Millisecond), newTone(freq, []float64{1}, 0, 0, nil))
	if err := wav.Encode(f, src, audio.Format); err != nil {
		t.Fatalf("wav.Encode: %v", err)
	}
}

func TestLoadBankPartial(t *testing.T) {
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "oud.wav"), 261.63)
	writeTone(t, filepath.Join(dir, "nature.wav"), 100)

	b, err := LoadBank(dir)
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	if b.Mode() != ModeSampled {
		t.Errorf("Mode = %q, want sampled", b.Mode())
	}
	if !b.IsLoaded(pattern.Oud) || !b.IsLoaded(pattern.Nature) {
		t.Error("oud and nature should be loaded")
	}
	if b.IsLoaded(pattern.Ney) {
		t.Error("ney should not be loaded")
	}

	b.Trigger(pattern.Trigger{Voice: pattern.Oud, Pitches: []maqam.Pitch{"G4"}, Length: transport.Quarter},
		pattern.Options{Volume: 0.8, Tempo: 60})
	if p := peak(stream(b, 100*time.Millisecond)); p == 0 {
		t.Error("sampled oud is silent")
	}

	b.Trigger(pattern.Trigger{Voice: pattern.Ney, Pitches: []maqam.Pitch{"G4"}, Length: transport.Half},
		pattern.Options{Volume: 0.8, Tempo: 60})
	if b.Playing() != 1 {
		t.Errorf("Playing = %d, unloaded ney should be ignored", b.Playing())
	}
}

func TestLoadBankEmptyDir(t *testing.T) {
	b, err := LoadBank(t.TempDir())
	if err == nil {
		t.Fatal("expected error for empty assets dir")
	}
	if len(b.Loaded()) != 0 {
		t.Errorf("Loaded = %v, want none", b.Loaded())
	}
}

// --- Envelope ---

func TestGateRelease(t *testing.T) {
	g := newGate(beep.Silence(-1), -1, 0.001, 0.01)
	buf := make([][2]float64, 480)
	if _, ok := g.Stream(buf); !ok {
		t.Fatal("held gate ended early")
	}
	g.Release()
	total := 0
	for i := 0; i < 10; i++ {
		n, ok := g.Stream(buf)
		total += n
		if !ok {
			break
		}
	}
	if total > 480+1 {
		t.Errorf("gate streamed %d samples after a 10ms release", total)
	}
}

func TestPitchRatio(t *testing.T) {
	r, err := pitchRatio(523.2511, "C4")
	if err != nil || math.Abs(r-2) > 1e-3 {
		t.Errorf("pitchRatio(C5 over C4) = %v, %v; want 2", r, err)
	}
}

// --- Effects ---

func TestEchoDelaysImpulse(t *testing.T) {
	e := newEcho(10*time.Millisecond, 0)
	n := len(e.buf)
	for i := 0; i <= n; i++ {
		in := [2]float64{}
		if i == 0 {
			in = [2]float64{1, 1}
		}
		out := e.process(in)
		want := 0.0
		if i == n {
			want = 1
		}
		if out[0] != want {
			t.Fatalf("sample %d = %v, want %v", i, out[0], want)
		}
	}
}

func TestSpaceDryWhenOff(t *testing.T) {
	s := newSpace()
	buf := [][2]float64{{0.5, -0.5}, {0.25, 0.25}}
	s.process(buf)
	if buf[0] != [2]float64{0.5, -0.5} || buf[1] != [2]float64{0.25, 0.25} {
		t.Errorf("dry signal changed: %v", buf)
	}
}

func TestSpaceDelayTap(t *testing.T) {
	s := newSpace()
	s.set(0, 1)
	n := audio.Format.SampleRate.N(delayTime)
	buf := make([][2]float64, n+1)
	buf[0] = [2]float64{1, 1}
	s.process(buf)
	if math.Abs(buf[n][0]-delayGain) > 1e-9 {
		t.Errorf("echo = %v, want %v", buf[n][0], delayGain)
	}
}

func TestBankEffectsTail(t *testing.T) {
	b := NewSynthBank()
	b.SetEffects(0.7, 0.3)
	b.Trigger(pattern.Trigger{Voice: pattern.Daf, Sound: "accent", Length: transport.ThirtySecond},
		pattern.Options{Volume: 1, Tempo: 120})
	stream(b, 300*time.Millisecond)
	if b.Playing() != 0 {
		t.Fatalf("Playing = %d, hit should have ended", b.Playing())
	}
	if p := peak(stream(b, 200*time.Millisecond)); p == 0 {
		t.Error("no reverb or delay tail after the hit")
	}

	b.Silence()
	if p := peak(stream(b, 100*time.Millisecond)); p != 0 {
		t.Errorf("peak after Silence = %v, want 0", p)
	}
}
