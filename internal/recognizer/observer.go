package recognizer

import "github.com/satriahrh/suara/domain/entities"

// Observer is notified of presentation-facing changes. Methods are called from the
// dispatch loop and must not block.
type Observer interface {
	OnTranscript(sessionID, text string)
	OnRecording(sessionID string, recording bool)
	OnSessionClosed(record entities.SessionRecord)
}

type nopObserver struct{}

func (nopObserver) OnTranscript(string, string)            {}
func (nopObserver) OnRecording(string, bool)               {}
func (nopObserver) OnSessionClosed(entities.SessionRecord) {}
