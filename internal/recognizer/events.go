package recognizer

import (
	"github.com/satriahrh/suara/domain/repositories"
)

type eventKind int

const (
	eventStart eventKind = iota
	eventStop
	eventTick
	eventInputEnded
	eventConnected
	eventConnectFailed
	eventMessage
	eventTransportError
	eventTransportClosed
	eventGraceExpired
)

func (k eventKind) String() string {
	switch k {
	case eventStart:
		return "start"
	case eventStop:
		return "stop"
	case eventTick:
		return "tick"
	case eventInputEnded:
		return "input_ended"
	case eventConnected:
		return "connected"
	case eventConnectFailed:
		return "connect_failed"
	case eventMessage:
		return "message"
	case eventTransportError:
		return "transport_error"
	case eventTransportClosed:
		return "transport_closed"
	case eventGraceExpired:
		return "grace_expired"
	default:
		return "unknown"
	}
}

// event is the single input of the dispatch loop. generation ties asynchronous
// results to the session that caused them.
type event struct {
	kind       eventKind
	generation uint64

	source  repositories.AudioSource
	conn    repositories.Connection
	payload []byte
	err     error
	reply   chan result
}

type result struct {
	sessionID string
	err       error
}

// connectionHandler forwards transport callbacks of one session into the loop
type connectionHandler struct {
	controller *Controller
	generation uint64
}

func (h *connectionHandler) OnMessage(payload []byte) {
	h.controller.post(event{kind: eventMessage, generation: h.generation, payload: payload})
}

func (h *connectionHandler) OnError(err error) {
	h.controller.post(event{kind: eventTransportError, generation: h.generation, err: err})
}

func (h *connectionHandler) OnClose() {
	h.controller.post(event{kind: eventTransportClosed, generation: h.generation})
}
