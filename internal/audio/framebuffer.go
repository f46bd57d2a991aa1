package audio

import (
	"sync"
)

const (
	// SampleRate is the only sample rate the recognizer accepts
	SampleRate = 16000
	// BytesPerSample for signed 16-bit little-endian mono
	BytesPerSample = 2
	// FrameSize is 0.4 s of audio, the payload of one protocol frame
	FrameSize = SampleRate * BytesPerSample * 400 / 1000
)

// FrameBuffer is an append-only byte buffer. Bytes are never reordered or mutated
// after Append; consumers read through a cursor they own.
type FrameBuffer struct {
	mu   sync.RWMutex
	data []byte
}

// NewFrameBuffer creates a buffer with room for initialBytes before growing
func NewFrameBuffer(initialBytes int) *FrameBuffer {
	if initialBytes < 0 {
		initialBytes = 0
	}
	return &FrameBuffer{
		data: make([]byte, 0, initialBytes),
	}
}

// Append copies p to the end of the buffer
func (b *FrameBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
}

// Write implements io.Writer so audio sources can write straight into the buffer
func (b *FrameBuffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Len returns the number of bytes appended since the last Clear
func (b *FrameBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// AvailableFrom returns how many bytes lie beyond cursor
func (b *FrameBuffer) AvailableFrom(cursor int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return available(len(b.data), cursor)
}

// ReadFrame copies up to maxLen bytes starting at cursor and returns them with the
// advanced cursor. The cursor never moves past the end of the buffer and never moves back.
func (b *FrameBuffer) ReadFrame(cursor, maxLen int) ([]byte, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if cursor < 0 {
		cursor = 0
	}
	n := available(len(b.data), cursor)
	if maxLen >= 0 && n > maxLen {
		n = maxLen
	}
	if n <= 0 {
		return []byte{}, cursor
	}

	frame := make([]byte, n)
	copy(frame, b.data[cursor:cursor+n])
	return frame, cursor + n
}

// Clear truncates the buffer. It must only be called while no session is reading it.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

func available(length, cursor int) int {
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= length {
		return 0
	}
	return length - cursor
}
