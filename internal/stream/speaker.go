package stream

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep/speaker"
	"github.com/satindergrewal/ambience/internal/audio"
)

// Speaker plays the broadcast on the local audio device. Underruns are
// filled with silence so the device never starves.
type Speaker struct {
	b *Broadcaster

	mu      sync.Mutex
	l       *Listener
	pending []int16
}

func NewSpeaker(b *Broadcaster) *Speaker {
	return &Speaker{b: b}
}

// Start opens the device and begins playback.
func (s *Speaker) Start() error {
	if err := speaker.Init(audio.Format.SampleRate, audio.FrameSize*4); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	s.subscribe()
	speaker.Play(s)
	return nil
}

func (s *Speaker) subscribe() {
	s.mu.Lock()
	s.l = s.b.Subscribe()
	s.mu.Unlock()
}

// Stream satisfies beep.Streamer. It ends once the speaker is closed.
func (s *Speaker) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.l == nil {
		return 0, false
	}
	select {
	case <-s.l.Done():
		return 0, false
	default:
	}

	for i := range samples {
		if len(s.pending) < audio.Channels {
			select {
			case frame := <-s.l.C:
				s.pending = frame
			default:
				clear(samples[i:])
				return len(samples), true
			}
		}
		samples[i][0] = float64(s.pending[0]) / 32768
		samples[i][1] = float64(s.pending[1]) / 32768
		s.pending = s.pending[audio.Channels:]
	}
	return len(samples), true
}

func (s *Speaker) Err() error { return nil }

// Close stops playback and releases the listener.
func (s *Speaker) Close() {
	s.mu.Lock()
	l := s.l
	s.mu.Unlock()
	if l != nil {
		s.b.Unsubscribe(l)
	}
	speaker.Clear()
}
