package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is the interpolation quality passed to beep.Resample.
const resampleQuality = 4

// LoadSample decodes an mp3 or wav file fully into memory at Format.
func LoadSample(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample %s: %w", path, err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("sample %s: unsupported format", path)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode sample %s: %w", path, err)
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != Format.SampleRate {
		src = beep.Resample(resampleQuality, format.SampleRate, Format.SampleRate, s)
	}
	buf := beep.NewBuffer(Format)
	buf.Append(src)
	if buf.Len() == 0 {
		return nil, fmt.Errorf("sample %s: no audio", path)
	}
	return buf, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
