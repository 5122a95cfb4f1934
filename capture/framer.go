package capture

import (
	"sync"

	"github.com/mrsingh-rishi/live-voice/model"
)

// Framer re-chunks device periods of arbitrary length into frames of exactly frameBytes.
type Framer struct {
	mu         sync.Mutex
	frameBytes int
	pending    []byte
	emit       FrameHandler
}

// NewFramer returns a framer that calls emit once per complete frame.
func NewFramer(frameBytes int, emit FrameHandler) *Framer {
	return &Framer{
		frameBytes: frameBytes,
		pending:    make([]byte, 0, frameBytes*2),
		emit:       emit,
	}
}

// Write appends raw samples and emits every complete frame in order.
// Emitted frames own their memory. emit is called with the framer locked so
// frames from overlapping writes cannot interleave.
func (f *Framer) Write(samples []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = append(f.pending, samples...)
	for len(f.pending) >= f.frameBytes {
		frame := model.Frame(f.pending[:f.frameBytes]).Clone()
		f.pending = f.pending[f.frameBytes:]
		f.emit(frame)
	}
	// compact so the backing array does not grow without bound
	if len(f.pending) > 0 && cap(f.pending)-len(f.pending) < f.frameBytes {
		rest := make([]byte, len(f.pending), f.frameBytes*2)
		copy(rest, f.pending)
		f.pending = rest
	}
}

// Buffered returns the number of bytes waiting for a complete frame.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = f.pending[:0]
}
