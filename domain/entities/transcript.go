package entities

import (
	"strings"
	"sync"
)

// Transcript accumulates recognized fragments for the current session.
// Fragments are only ever appended; Clear happens once at the start of a session.
// Readers may call Text concurrently with the session appending.
type Transcript struct {
	mu        sync.RWMutex
	builder   strings.Builder
	fragments int
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a fragment to the end of the transcript. Empty fragments are ignored
// and reported as not appended.
func (t *Transcript) Append(fragment string) bool {
	if fragment == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.builder.WriteString(fragment)
	t.fragments++
	return true
}

// Clear empties the transcript
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.builder.Reset()
	t.fragments = 0
}

// Text returns the current running text
func (t *Transcript) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.builder.String()
}

// Fragments returns how many fragments were appended since the last Clear
func (t *Transcript) Fragments() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fragments
}
