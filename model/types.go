package model

// AudioChunk represents one encoded audio payload received from the remote session.
// The container describes itself; raw PCM is assumed when no header is present.
type AudioChunk []byte

// Frame represents one fixed-size PCM16LE capture buffer.
type Frame []byte

// Samples returns the number of 16-bit samples held by the frame.
func (f Frame) Samples() int {
	return len(f) / 2
}

// Clone returns a copy of the frame that does not alias the device buffer.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}
