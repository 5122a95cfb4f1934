package capture

import (
	"fmt"

	"github.com/mrsingh-rishi/live-voice/model"
)

// Config describes the capture format. Samples are always signed 16-bit little-endian.
type Config struct {
	SampleRate   int
	Channels     int
	FrameSamples int
}

// FrameBytes returns the size of one emitted frame.
func (c Config) FrameBytes() int {
	return c.FrameSamples * c.Channels * 2
}

// Validate checks the capture format.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive")
	}
	if c.FrameSamples <= 0 {
		return fmt.Errorf("frame samples must be positive")
	}
	return nil
}

// FrameHandler receives every captured frame. It runs on the device thread and must not block.
type FrameHandler func(model.Frame)

// Microphone acquires exclusive capture handles.
type Microphone interface {
	// Open starts capturing and delivers fixed-size frames to onFrame until the
	// returned stream is closed. A failed Open leaves nothing to release.
	Open(cfg Config, onFrame FrameHandler) (Stream, error)
}

// Stream is a live capture handle.
type Stream interface {
	// Close stops the hardware track and releases the device. Safe to call more than once.
	Close() error
}
