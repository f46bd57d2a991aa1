package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned when a start is requested while a session is still running
	ErrSessionActive = errors.New("recognition session already active")

	// ErrNoSession is returned when a session lookup finds nothing
	ErrNoSession = errors.New("recognition session not found")

	// ErrNoActiveSession is returned when a stop is requested while nothing is recording
	ErrNoActiveSession = errors.New("no active recognition session")
)

// ConfigError reports missing or invalid configuration. It is raised before any
// connection attempt is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s %s", e.Field, e.Reason)
}

// TransportError wraps a connection or send failure. The session aborts and is not retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError carries a non-zero response code sent by the recognizer
type ProtocolError struct {
	Code    int
	Message string
	SID     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// MalformedResponseError is an inbound message that could not be decoded.
// It is logged and ignored; the session continues.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
