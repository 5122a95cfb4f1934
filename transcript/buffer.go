package transcript

import (
	"strings"
	"sync"
)

// Buffer accumulates incremental text fragments in arrival order.
// It is append-only; Reset is reserved for the start of a new listening session.
type Buffer struct {
	mu        sync.RWMutex
	fragments []string
	text      strings.Builder
}

// NewBuffer creates an empty transcript buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a fragment to the end of the transcript. Empty fragments are ignored.
func (b *Buffer) Append(fragment string) {
	if fragment == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, fragment)
	b.text.WriteString(fragment)
}

// String returns the concatenated transcript.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text.String()
}

// Fragments returns a copy of the fragments received so far.
func (b *Buffer) Fragments() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.fragments))
	copy(out, b.fragments)
	return out
}

// Len returns the number of fragments.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fragments)
}

// Reset clears the transcript.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = nil
	b.text.Reset()
}
