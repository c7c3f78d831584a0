package capture

import "github.com/satindergrewal/ambience/internal/audio"

// SeamlessLoop returns the signal cut to its loop region with the reserved
// tail crossfaded over the head, so playing it end to start has no seam.
// Signals too short to hold two reserves come back unchanged.
func SeamlessLoop(a Artifact) []int16 {
	reserve := int(LoopReserve*audio.SampleRate) * audio.Channels
	n := len(a.Signal) - len(a.Signal)%audio.Channels
	if n < 2*reserve {
		return append([]int16(nil), a.Signal[:n]...)
	}
	head := a.Signal[:reserve]
	tail := a.Signal[n-reserve : n]

	out := make([]int16, 0, n-reserve)
	out = append(out, audio.Crossfade(tail, head)...)
	out = append(out, a.Signal[reserve:n-reserve]...)
	return out
}
