package entities

import "time"

// SessionRecord is the summary of a finished session kept in the transcript history
type SessionRecord struct {
	ID            string         `json:"id" bson:"_id"`
	StartedAt     time.Time      `json:"started_at" bson:"started_at"`
	EndedAt       time.Time      `json:"ended_at" bson:"ended_at"`
	Transcript    string         `json:"transcript" bson:"transcript"`
	Outcome       SessionOutcome `json:"outcome" bson:"outcome"`
	Error         string         `json:"error,omitempty" bson:"error,omitempty"`
	FramesSent    int            `json:"frames_sent" bson:"frames_sent"`
	BytesSent     int            `json:"bytes_sent" bson:"bytes_sent"`
	FramesDropped int            `json:"frames_dropped" bson:"frames_dropped"`
}

// NewSessionRecord snapshots a closed session together with its transcript text
func NewSessionRecord(s *Session, text string) SessionRecord {
	record := SessionRecord{
		ID:            s.ID,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		Transcript:    text,
		Outcome:       s.Outcome,
		FramesSent:    s.FramesSent,
		BytesSent:     s.BytesSent,
		FramesDropped: s.FramesDropped,
	}
	if s.Err != nil {
		record.Error = s.Err.Error()
	}
	return record
}

// DurationMs returns the session length in milliseconds
func (r SessionRecord) DurationMs() int64 {
	return r.EndedAt.Sub(r.StartedAt).Milliseconds()
}
