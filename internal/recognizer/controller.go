package recognizer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/audio"
	"github.com/satriahrh/suara/internal/auth"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/protocol"
)

// ErrNotRunning is returned by commands issued while the dispatch loop is not running
var ErrNotRunning = errors.New("recognizer controller is not running")

// Snapshot is a consistent read-only view of the controller for presentation
type Snapshot struct {
	SessionID     string
	Status        entities.SessionStatus
	Recording     bool
	Text          string
	Err           error
	FramesSent    int
	FramesDropped int
	BytesSent     int
}

// Controller owns one recognition session at a time. Commands, timer ticks and
// transport callbacks are all turned into events and applied in order by a
// single dispatch loop, so session state has exactly one writer.
type Controller struct {
	logger    *zap.Logger
	signer    *auth.Signer
	transport repositories.Transport
	encoder   *protocol.FrameEncoder
	metrics   *metrics.Metrics
	observer  Observer
	options   Options

	events  chan event
	done    chan struct{}
	running atomic.Bool
	now     func() time.Time
	newID   func() string

	// owned by the dispatch loop
	session       *entities.Session
	buffer        *audio.FrameBuffer
	cursor        int
	conn          repositories.Connection
	generation    uint64
	cancelCapture context.CancelFunc
	cancelConnect context.CancelFunc
	ticker        *time.Ticker
	graceTimer    *time.Timer

	transcript *entities.Transcript
	recording  atomic.Bool

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewController creates a controller. A nil observer or metrics is replaced with a no-op.
func NewController(
	logger *zap.Logger,
	signer *auth.Signer,
	transport repositories.Transport,
	m *metrics.Metrics,
	observer Observer,
	options Options,
) (*Controller, error) {
	if signer == nil {
		return nil, &domain.ConfigError{Field: "recognizer.credentials", Reason: "are required"}
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if err := options.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &Controller{
		logger:     logger,
		signer:     signer,
		transport:  transport,
		encoder:    protocol.NewFrameEncoder(options.AppID, options.Business),
		metrics:    m,
		observer:   observer,
		options:    options,
		events:     make(chan event, 64),
		done:       make(chan struct{}),
		now:        time.Now,
		newID:      uuid.NewString,
		buffer:     audio.NewFrameBuffer(0),
		transcript: entities.NewTranscript(),
		snapshot:   Snapshot{Status: entities.SessionStatusIdle},
	}, nil
}

// Run drives the dispatch loop until ctx is cancelled. An active session is closed on exit.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("recognizer controller already running")
	}
	defer close(c.done)

	c.logger.Info("Recognizer controller started")
	for {
		select {
		case <-ctx.Done():
			if c.session != nil && c.session.IsActive() {
				c.closeSession(entities.OutcomeStopped)
				c.publish()
			}
			c.logger.Info("Recognizer controller stopped")
			return nil
		case ev := <-c.events:
			c.dispatch(ev)
		case <-c.tickC():
			c.dispatch(event{kind: eventTick})
		}
	}
}

// Start begins a new session capturing from source. It returns domain.ErrSessionActive
// while a recording is in progress.
func (c *Controller) Start(ctx context.Context, source repositories.AudioSource) (string, error) {
	if source == nil {
		return "", errors.New("audio source is required")
	}
	res, err := c.submit(ctx, event{kind: eventStart, source: source})
	if err != nil {
		return "", err
	}
	return res.sessionID, res.err
}

// Stop ends the active session. It returns domain.ErrNoActiveSession when nothing is active
// and is a no-op while a session is already finalizing.
func (c *Controller) Stop(ctx context.Context) error {
	res, err := c.submit(ctx, event{kind: eventStop})
	if err != nil {
		return err
	}
	return res.err
}

// Recording reports whether audio is being captured for the current session
func (c *Controller) Recording() bool {
	return c.recording.Load()
}

// Transcript returns the running text of the current or last session
func (c *Controller) Transcript() string {
	return c.transcript.Text()
}

// Snapshot returns the presentation view of the current or last session
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	snap.Recording = c.recording.Load()
	snap.Text = c.transcript.Text()
	return snap
}

func (c *Controller) submit(ctx context.Context, ev event) (result, error) {
	ev.reply = make(chan result, 1)

	select {
	case c.events <- ev:
	case <-c.done:
		return result{}, ErrNotRunning
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-ev.reply:
		return res, nil
	case <-c.done:
		return result{}, ErrNotRunning
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// post delivers an asynchronous event. It never blocks once the loop has exited.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) tickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C
}

func (c *Controller) publish() {
	snap := Snapshot{Status: entities.SessionStatusIdle}
	if s := c.session; s != nil {
		snap.SessionID = s.ID
		snap.Status = s.Status
		snap.Err = s.Err
		snap.FramesSent = s.FramesSent
		snap.FramesDropped = s.FramesDropped
		snap.BytesSent = s.BytesSent
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}
