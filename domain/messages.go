package domain

// UpdateType names a live update pushed to presentation clients
type UpdateType string

const (
	UpdateTranscript    UpdateType = "transcript"
	UpdateRecording     UpdateType = "recording"
	UpdateSessionClosed UpdateType = "session_closed"
)

// UpdateMessage is broadcast whenever the transcript or the recording flag changes,
// and once when a session closes
type UpdateMessage struct {
	Type      UpdateType `json:"type"`
	SessionID string     `json:"session_id"`
	Text      string     `json:"text,omitempty"`
	Recording bool       `json:"recording"`
	Outcome   string     `json:"outcome,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}
