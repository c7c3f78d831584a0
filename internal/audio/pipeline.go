package audio

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
)

// Pipeline renders a live beep source into PCM frames at real-time rate.
// The source is expected to stream silence rather than end when idle.
type Pipeline struct {
	source  beep.Streamer
	frameCh chan []int16
	buf     [][2]float64

	mu       sync.RWMutex
	rendered time.Duration
	ended    bool
}

// NewPipeline creates a pipeline reading from source.
func NewPipeline(source beep.Streamer) *Pipeline {
	return &Pipeline{
		source:  source,
		frameCh: make(chan []int16, 100),
		buf:     make([][2]float64, FrameSize),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Rendered returns how much audio has been produced since Run started.
func (p *Pipeline) Rendered() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rendered
}

// RenderFrame pulls one 20ms frame from the source. A source that runs dry
// is padded with silence.
func (p *Pipeline) RenderFrame() []int16 {
	clear(p.buf)
	filled := 0
	for filled < len(p.buf) {
		n, ok := p.source.Stream(p.buf[filled:])
		filled += n
		if !ok || n == 0 {
			break
		}
	}
	if filled < len(p.buf) {
		p.markEnded()
	}
	p.mu.Lock()
	p.rendered += FrameDuration
	p.mu.Unlock()
	return Interleave(p.buf)
}

func (p *Pipeline) markEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ended {
		p.ended = true
		log.Println("Pipeline source ran dry, padding with silence")
	}
}

// Run starts the pipeline. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !p.sendFrame(ctx, p.RenderFrame()) {
			return
		}
	}
}

// sendFrame returns false on cancel.
func (p *Pipeline) sendFrame(ctx context.Context, frame []int16) bool {
	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}
