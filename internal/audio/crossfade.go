package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// CrossfadeFrames blends an outgoing frame with an incoming frame at the given
// progress (0.0 = all outgoing, 1.0 = all incoming). Uses smoothstep curve.
// Both frames must have the same length. Returns the blended frame.
func CrossfadeFrames(outgoing, incoming []int16, progress float64) []int16 {
	gain := Smoothstep(progress)
	result := make([]int16, len(outgoing))

	for i := range outgoing {
		mixed := float64(outgoing[i])*(1-gain) + float64(incoming[i])*gain
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		result[i] = int16(mixed)
	}

	return result
}

// Crossfade blends outgoing into incoming frame by frame, advancing progress
// once per 20ms frame the way live playback does. The shorter input decides
// the length.
func Crossfade(outgoing, incoming []int16) []int16 {
	n := min(len(outgoing), len(incoming))
	n -= n % Channels
	if n == 0 {
		return nil
	}
	frames := (n + FrameSamples - 1) / FrameSamples
	out := make([]int16, 0, n)
	for f := 0; f < frames; f++ {
		lo := f * FrameSamples
		hi := min(lo+FrameSamples, n)
		progress := float64(f) / float64(frames)
		out = append(out, CrossfadeFrames(outgoing[lo:hi], incoming[lo:hi], progress)...)
	}
	return out
}
