package audio

import (
	"time"

	"github.com/gopxl/beep"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Format is the beep format every stream in the service is rendered at.
var Format = beep.Format{
	SampleRate:  beep.SampleRate(SampleRate),
	NumChannels: Channels,
	Precision:   BitDepth / 8,
}

// ToInt16 converts a float sample to int16, clipping to range.
func ToInt16(v float64) int16 {
	v *= 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Interleave converts stereo float samples to interleaved int16 PCM.
func Interleave(samples [][2]float64) []int16 {
	out := make([]int16, len(samples)*Channels)
	for i, s := range samples {
		out[i*2] = ToInt16(s[0])
		out[i*2+1] = ToInt16(s[1])
	}
	return out
}

// PCMStreamer streams interleaved stereo int16 PCM as beep samples.
func PCMStreamer(pcm []int16) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		for n < len(samples) && pos+1 < len(pcm) {
			samples[n][0] = float64(pcm[pos]) / 32768
			samples[n][1] = float64(pcm[pos+1]) / 32768
			pos += 2
			n++
		}
		return n, n > 0
	})
}

// PCMBuffer wraps interleaved PCM in a beep.Buffer at Format.
func PCMBuffer(pcm []int16) *beep.Buffer {
	buf := beep.NewBuffer(Format)
	buf.Append(PCMStreamer(pcm))
	return buf
}

// PCMDuration returns the play length of interleaved stereo PCM.
func PCMDuration(pcm []int16) time.Duration {
	return time.Duration(len(pcm)/Channels) * time.Second / SampleRate
}
