package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/recognizer"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	saveTimeout         = 5 * time.Second
	recordQueueSize     = 32
)

// Recognizer is the session controller the service drives
type Recognizer interface {
	Start(ctx context.Context, source repositories.AudioSource) (string, error)
	Stop(ctx context.Context) error
	Snapshot() recognizer.Snapshot
}

// Broadcaster fans live updates out to presentation clients. Broadcast must not block.
type Broadcaster interface {
	Broadcast(msg domain.UpdateMessage)
}

// SourceFactory opens the audio source for a new recording
type SourceFactory func() (repositories.AudioSource, error)

// RecordingStatus is the presentation view of the current or last session
type RecordingStatus struct {
	SessionID     string `json:"session_id,omitempty"`
	Status        string `json:"status"`
	Recording     bool   `json:"recording"`
	Text          string `json:"text"`
	Error         string `json:"error,omitempty"`
	FramesSent    int    `json:"frames_sent"`
	FramesDropped int    `json:"frames_dropped"`
	BytesSent     int    `json:"bytes_sent"`
}

// RecordingService is the presentation-facing facade over the recognizer. It also
// observes the recognizer: updates are broadcast and finished sessions are saved.
type RecordingService struct {
	transcripts repositories.TranscriptRepository
	broadcaster Broadcaster
	newSource   SourceFactory
	logger      *zap.Logger

	mu         sync.RWMutex
	recognizer Recognizer

	records chan entities.SessionRecord
	now     func() time.Time

	// last flag reported through OnRecording
	recording atomic.Bool
}

// NewRecordingService creates a new recording service. Bind must be called before
// recordings can be started.
func NewRecordingService(
	transcripts repositories.TranscriptRepository,
	broadcaster Broadcaster,
	newSource SourceFactory,
	logger *zap.Logger,
) *RecordingService {
	return &RecordingService{
		transcripts: transcripts,
		broadcaster: broadcaster,
		newSource:   newSource,
		logger:      logger,
		records:     make(chan entities.SessionRecord, recordQueueSize),
		now:         time.Now,
	}
}

// Bind attaches the recognizer the service drives
func (s *RecordingService) Bind(r Recognizer) {
	s.mu.Lock()
	s.recognizer = r
	s.mu.Unlock()
}

func (s *RecordingService) current() (Recognizer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recognizer == nil {
		return nil, errors.New("recording service has no recognizer")
	}
	return s.recognizer, nil
}

// Run saves finished sessions until ctx is cancelled, then drains what is queued
func (s *RecordingService) Run(ctx context.Context) error {
	for {
		select {
		case record := <-s.records:
			s.save(record)
		case <-ctx.Done():
			for {
				select {
				case record := <-s.records:
					s.save(record)
				default:
					return nil
				}
			}
		}
	}
}

func (s *RecordingService) save(record entities.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.transcripts.Save(ctx, record); err != nil {
		s.logger.Error("Failed to save session record",
			zap.String("sessionID", record.ID),
			zap.Error(err))
		return
	}
	s.logger.Debug("Session record saved", zap.String("sessionID", record.ID))
}

// StartRecording opens the configured audio source and starts a new session
func (s *RecordingService) StartRecording(ctx context.Context) (string, error) {
	r, err := s.current()
	if err != nil {
		return "", err
	}

	source, err := s.newSource()
	if err != nil {
		return "", fmt.Errorf("failed to open audio source: %w", err)
	}

	id, err := r.Start(ctx, source)
	if err != nil {
		return "", err
	}
	s.logger.Info("Recording started", zap.String("sessionID", id))
	return id, nil
}

// StopRecording stops the active session
func (s *RecordingService) StopRecording(ctx context.Context) error {
	r, err := s.current()
	if err != nil {
		return err
	}
	return r.Stop(ctx)
}

// Status returns the current or last session
func (s *RecordingService) Status() (RecordingStatus, error) {
	r, err := s.current()
	if err != nil {
		return RecordingStatus{}, err
	}

	snap := r.Snapshot()
	status := RecordingStatus{
		SessionID:     snap.SessionID,
		Status:        string(snap.Status),
		Recording:     snap.Recording,
		Text:          snap.Text,
		FramesSent:    snap.FramesSent,
		FramesDropped: snap.FramesDropped,
		BytesSent:     snap.BytesSent,
	}
	if snap.Err != nil {
		status.Error = snap.Err.Error()
	}
	return status, nil
}

// History returns finished sessions, newest first. The limit is clamped to [1, 100].
func (s *RecordingService) History(ctx context.Context, limit int) ([]entities.SessionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.transcripts.List(ctx, limit)
}

// Session returns one finished session. It returns domain.ErrNoSession when unknown.
func (s *RecordingService) Session(ctx context.Context, id string) (*entities.SessionRecord, error) {
	return s.transcripts.Get(ctx, id)
}

// OnTranscript implements recognizer.Observer
func (s *RecordingService) OnTranscript(sessionID, text string) {
	s.broadcaster.Broadcast(domain.UpdateMessage{
		Type:      domain.UpdateTranscript,
		SessionID: sessionID,
		Text:      text,
		Recording: s.recording.Load(),
		Timestamp: s.timestamp(),
	})
}

// OnRecording implements recognizer.Observer
func (s *RecordingService) OnRecording(sessionID string, recording bool) {
	s.recording.Store(recording)
	s.broadcaster.Broadcast(domain.UpdateMessage{
		Type:      domain.UpdateRecording,
		SessionID: sessionID,
		Recording: recording,
		Timestamp: s.timestamp(),
	})
}

// OnSessionClosed implements recognizer.Observer
func (s *RecordingService) OnSessionClosed(record entities.SessionRecord) {
	s.broadcaster.Broadcast(domain.UpdateMessage{
		Type:      domain.UpdateSessionClosed,
		SessionID: record.ID,
		Text:      record.Transcript,
		Outcome:   string(record.Outcome),
		Error:     record.Error,
		Timestamp: s.timestamp(),
	})

	select {
	case s.records <- record:
	default:
		s.logger.Warn("Session record queue full, saving inline", zap.String("sessionID", record.ID))
		go s.save(record)
	}
}

func (s *RecordingService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
