package stream

import "testing"

func TestSpeakerStreamsFramesThenSilence(t *testing.T) {
	b := NewBroadcaster()
	s := NewSpeaker(b)
	s.subscribe()

	b.Publish([]int16{16384, -16384, 8192, -8192})
	buf := make([][2]float64, 4)
	n, ok := s.Stream(buf)
	if n != 4 || !ok {
		t.Fatalf("Stream = %d, %v; want 4, true", n, ok)
	}
	want := [][2]float64{{0.5, -0.5}, {0.25, -0.25}, {0, 0}, {0, 0}}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, buf[i], want[i])
		}
	}

	b.Unsubscribe(s.l)
	if _, ok := s.Stream(buf); ok {
		t.Error("Stream still playing after unsubscribe")
	}
}
