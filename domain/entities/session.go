package entities

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus represents where a recognition session is in its lifecycle
type SessionStatus string

const (
	SessionStatusIdle           SessionStatus = "idle"
	SessionStatusAwaitingBuffer SessionStatus = "awaiting_buffer"
	SessionStatusConnecting     SessionStatus = "connecting"
	SessionStatusStreaming      SessionStatus = "streaming"
	SessionStatusFinalizing     SessionStatus = "finalizing"
	SessionStatusClosed         SessionStatus = "closed"
)

// FrameState tags an outbound frame. The numeric values are the wire status codes.
type FrameState int

const (
	FrameStateFirst    FrameState = 0
	FrameStateContinue FrameState = 1
	FrameStateLast     FrameState = 2
)

func (f FrameState) String() string {
	switch f {
	case FrameStateFirst:
		return "first"
	case FrameStateContinue:
		return "continue"
	case FrameStateLast:
		return "last"
	default:
		return fmt.Sprintf("frame_state(%d)", int(f))
	}
}

// SessionOutcome describes why a session closed
type SessionOutcome string

const (
	// OutcomeCompleted means the recognizer sent its terminal response
	OutcomeCompleted SessionOutcome = "completed"
	// OutcomeStopped means the session ended locally without a terminal response
	OutcomeStopped        SessionOutcome = "stopped"
	OutcomeProtocolError  SessionOutcome = "protocol_error"
	OutcomeTransportError SessionOutcome = "transport_error"
)

// ErrInvalidTransition is returned when a transition is requested from a status that does not allow it
var ErrInvalidTransition = errors.New("invalid session transition")

// Session is the state of one start-to-stop interaction with the recognizer.
// All mutation goes through the transition methods below; the owner is expected
// to call them from a single goroutine.
type Session struct {
	ID           string
	Status       SessionStatus
	FrameState   FrameState
	SessionValid bool

	// Connected is set once the transport reports an open connection
	Connected bool
	// StopRequested is set by an explicit stop, a server error or a terminal response
	StopRequested bool
	// InputEnded is set when the audio producer will not append any more data
	InputEnded bool
	// LastSent is set once the Last frame has been handed to the transport
	LastSent bool

	StartedAt time.Time
	EndedAt   time.Time

	FramesSent    int
	BytesSent     int
	FramesDropped int

	Outcome SessionOutcome
	Err     error
}

// NewSession creates a session that waits for the buffered-audio threshold
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Status:     SessionStatusAwaitingBuffer,
		FrameState: FrameStateFirst,
		StartedAt:  now,
	}
}

func (s *Session) transition(from []SessionStatus, to SessionStatus) error {
	for _, status := range from {
		if s.Status == status {
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
}

// BeginConnecting moves a session that crossed the buffered threshold to Connecting.
// It happens once per session.
func (s *Session) BeginConnecting() error {
	return s.transition([]SessionStatus{SessionStatusAwaitingBuffer}, SessionStatusConnecting)
}

// MarkConnected records that the transport connection is open
func (s *Session) MarkConnected() error {
	if s.Status != SessionStatusConnecting {
		return fmt.Errorf("%w: connected while %s", ErrInvalidTransition, s.Status)
	}
	s.Connected = true
	return nil
}

// ReadyForFirstFrame reports whether the First frame may be attempted
func (s *Session) ReadyForFirstFrame() bool {
	return s.Status == SessionStatusConnecting && s.Connected && s.FrameState == FrameStateFirst
}

// MarkFirstSent records a successful First frame: the session becomes valid and streams continuation frames.
func (s *Session) MarkFirstSent(payloadLen int) error {
	if !s.ReadyForFirstFrame() {
		return fmt.Errorf("%w: first frame while %s/%s", ErrInvalidTransition, s.Status, s.FrameState)
	}
	s.FrameState = FrameStateContinue
	s.SessionValid = true
	s.recordSent(payloadLen)
	return s.transition([]SessionStatus{SessionStatusConnecting}, SessionStatusStreaming)
}

// MarkContinueSent records a continuation frame
func (s *Session) MarkContinueSent(payloadLen int) error {
	if s.Status != SessionStatusStreaming || s.FrameState != FrameStateContinue {
		return fmt.Errorf("%w: continue frame while %s/%s", ErrInvalidTransition, s.Status, s.FrameState)
	}
	s.recordSent(payloadLen)
	return nil
}

// MarkDropped records a silent frame that was consumed but not transmitted
func (s *Session) MarkDropped() {
	s.FramesDropped++
}

// BeginFinalizing moves a session with an open connection to Finalizing. A connected
// session that never sent its First frame may finalize too.
func (s *Session) BeginFinalizing() error {
	if s.Status == SessionStatusConnecting && !s.Connected {
		return fmt.Errorf("%w: finalizing before connection", ErrInvalidTransition)
	}
	return s.transition([]SessionStatus{SessionStatusStreaming, SessionStatusConnecting}, SessionStatusFinalizing)
}

// MarkLastSent records the Last frame. No frame is accepted afterwards.
func (s *Session) MarkLastSent(payloadLen int) error {
	if s.Status != SessionStatusFinalizing || s.LastSent {
		return fmt.Errorf("%w: last frame while %s (sent=%t)", ErrInvalidTransition, s.Status, s.LastSent)
	}
	s.FrameState = FrameStateLast
	s.LastSent = true
	s.recordSent(payloadLen)
	return nil
}

// RequestStop flags the session for finalization. It returns false if a stop was already requested.
func (s *Session) RequestStop() bool {
	if s.StopRequested || s.Status == SessionStatusClosed {
		return false
	}
	s.StopRequested = true
	return true
}

// Fail records the error that ends the session. The first recorded error wins.
func (s *Session) Fail(outcome SessionOutcome, err error) {
	if s.Err != nil || s.Status == SessionStatusClosed {
		return
	}
	s.Outcome = outcome
	s.Err = err
}

// Close moves the session to Closed. Closing twice is a no-op and returns false.
func (s *Session) Close(outcome SessionOutcome, now time.Time) bool {
	if s.Status == SessionStatusClosed {
		return false
	}
	if s.Outcome == "" {
		s.Outcome = outcome
	}
	s.Status = SessionStatusClosed
	s.EndedAt = now
	return true
}

// IsActive reports whether the session still owns resources
func (s *Session) IsActive() bool {
	return s.Status != SessionStatusClosed && s.Status != SessionStatusIdle
}

// Duration returns the session wall-clock duration, up to now for open sessions
func (s *Session) Duration(now time.Time) time.Duration {
	if !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

func (s *Session) recordSent(payloadLen int) {
	s.FramesSent++
	s.BytesSent += payloadLen
}
