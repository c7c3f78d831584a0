package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/wav"
	"github.com/satindergrewal/ambience/internal/audio"
)

// DefaultScope prefixes every export file name.
const DefaultScope = "maqam_ambience"

var ErrNoSignal = errors.New("capture: artifact has no signal")

// Exporter writes artifacts to a directory. File names are unique within
// the process even when two exports land in the same millisecond.
type Exporter struct {
	dir   string
	scope string
	now   func() time.Time

	mu   sync.Mutex
	last int64
}

// NewExporter creates an exporter writing into dir.
func NewExporter(dir, scope string) *Exporter {
	if scope == "" {
		scope = DefaultScope
	}
	return &Exporter{dir: dir, scope: scope, now: time.Now}
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// FileName returns {scope}_{scale}_{mode}_{unixMillis}.{ext}.
func (e *Exporter) FileName(scaleID, mode, ext string) string {
	e.mu.Lock()
	stamp := e.now().UnixMilli()
	if stamp <= e.last {
		stamp = e.last + 1
	}
	e.last = stamp
	e.mu.Unlock()

	return fmt.Sprintf("%s_%s_%s_%d.%s", e.scope, slug(scaleID), slug(mode), stamp, ext)
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// ExportToFile writes the artifact as a 16-bit stereo WAV file and returns
// its path.
func (e *Exporter) ExportToFile(a Artifact, scaleID, mode string) (string, error) {
	if len(a.Signal) < audio.Channels {
		return "", ErrNoSignal
	}
	return e.writeWAV(a.Signal, e.FileName(scaleID, mode, "wav"))
}

// ExportLoop writes the seamless-loop rendition of the artifact.
func (e *Exporter) ExportLoop(a Artifact, scaleID, mode string) (string, error) {
	if len(a.Signal) < audio.Channels {
		return "", ErrNoSignal
	}
	return e.writeWAV(SeamlessLoop(a), e.FileName(scaleID, mode+" loop", "wav"))
}

func (e *Exporter) writeWAV(pcm []int16, name string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	if err := wav.Encode(f, audio.PCMStreamer(pcm), audio.Format); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode wav: %w", err)
	}
	return path, nil
}
