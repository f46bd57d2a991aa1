package recognizer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/audio"
	"github.com/satriahrh/suara/internal/protocol"
)

// dispatch applies one event. It is the only place session state changes.
func (c *Controller) dispatch(ev event) {
	defer c.publish()

	switch ev.kind {
	case eventStart:
		id, err := c.handleStart(ev.source)
		c.reply(ev, result{sessionID: id, err: err})
		return
	case eventStop:
		c.reply(ev, result{err: c.handleStop()})
		return
	case eventTick:
		c.handleTick()
		return
	}

	if !c.isCurrent(ev.generation) {
		c.discard(ev)
		return
	}

	switch ev.kind {
	case eventInputEnded:
		c.handleInputEnded(ev.err)
	case eventConnected:
		c.handleConnected(ev.conn)
	case eventConnectFailed:
		c.abort(entities.OutcomeTransportError, &domain.TransportError{Op: "connect", Err: ev.err})
	case eventMessage:
		c.handleMessage(ev.payload)
	case eventTransportError:
		c.abort(entities.OutcomeTransportError, &domain.TransportError{Op: "read", Err: ev.err})
	case eventTransportClosed:
		c.handleTransportClosed()
	case eventGraceExpired:
		if c.session.Status == entities.SessionStatusFinalizing {
			c.logger.Debug("Close grace expired", zap.String("sessionID", c.session.ID))
			c.closeSession(entities.OutcomeStopped)
		}
	default:
		c.logger.Warn("Unknown event", zap.Int("kind", int(ev.kind)))
	}
}

func (c *Controller) reply(ev event, res result) {
	if ev.reply != nil {
		ev.reply <- res
	}
}

func (c *Controller) isCurrent(generation uint64) bool {
	return c.session != nil && generation == c.generation && c.session.Status != entities.SessionStatusClosed
}

// discard drops an event that belongs to a closed or replaced session
func (c *Controller) discard(ev event) {
	if ev.kind == eventConnected && ev.conn != nil {
		if err := ev.conn.Close(); err != nil {
			c.logger.Debug("Failed to close stale connection", zap.Error(err))
		}
	}
	c.logger.Debug("Discarded stale event",
		zap.Stringer("kind", ev.kind),
		zap.Uint64("generation", ev.generation))
}

func (c *Controller) handleStart(source repositories.AudioSource) (string, error) {
	if c.recording.Load() {
		return "", domain.ErrSessionActive
	}
	if c.session != nil && c.session.IsActive() {
		// The previous session is only waiting out its close grace.
		c.closeSession(entities.OutcomeStopped)
	}

	c.generation++
	generation := c.generation
	c.buffer = audio.NewFrameBuffer(c.options.threshold())
	c.cursor = 0
	c.transcript.Clear()
	c.session = entities.NewSession(c.newID(), c.now())

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelCapture = cancel
	buffer := c.buffer
	go func() {
		err := source.Capture(ctx, buffer)
		c.post(event{kind: eventInputEnded, generation: generation, err: err})
	}()

	c.startTicker()
	c.metrics.RecordSessionStarted()
	c.setRecording(true)

	c.logger.Info("Recognition session started",
		zap.String("sessionID", c.session.ID),
		zap.Int("thresholdBytes", c.options.threshold()))
	return c.session.ID, nil
}

func (c *Controller) handleStop() error {
	if c.session == nil || !c.session.IsActive() {
		return domain.ErrNoActiveSession
	}
	c.logger.Info("Stop requested", zap.String("sessionID", c.session.ID))
	c.requestStop()
	return nil
}

// requestStop converges every stop path: capture ends, and the session either
// finalizes with a Last frame or closes at once when no connection is open.
func (c *Controller) requestStop() {
	if !c.session.RequestStop() {
		return
	}
	c.stopCapture()
	c.setRecording(false)

	switch {
	case c.canFinalize():
		c.finalize()
	default:
		c.closeSession(entities.OutcomeStopped)
	}
}

// canFinalize reports whether a Last frame can still go out on an open connection
func (c *Controller) canFinalize() bool {
	s := c.session
	return s.Status == entities.SessionStatusStreaming ||
		(s.Status == entities.SessionStatusConnecting && s.Connected)
}

func (c *Controller) handleInputEnded(err error) {
	c.session.InputEnded = true
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("Audio source failed, treating as end of input",
			zap.String("sessionID", c.session.ID),
			zap.Error(err))
		return
	}
	c.logger.Debug("Audio input ended",
		zap.String("sessionID", c.session.ID),
		zap.Int("bufferedBytes", c.buffer.Len()))
}

func (c *Controller) handleConnected(conn repositories.Connection) {
	c.cancelConnect = nil
	if err := c.session.MarkConnected(); err != nil {
		c.logger.Warn("Unexpected connection", zap.String("sessionID", c.session.ID), zap.Error(err))
		conn.Close()
		return
	}
	c.conn = conn
	c.logger.Info("Recognizer connected", zap.String("sessionID", c.session.ID))
}

func (c *Controller) handleMessage(payload []byte) {
	s := c.session
	rec, err := protocol.ParseResponse(payload)

	var malformed *domain.MalformedResponseError
	var protoErr *domain.ProtocolError
	switch {
	case errors.As(err, &malformed):
		c.metrics.RecordMalformedResponse()
		c.logger.Warn("Ignoring malformed response",
			zap.String("sessionID", s.ID),
			zap.String("raw", malformed.Raw),
			zap.Error(malformed.Err))
		return
	case errors.As(err, &protoErr):
		c.logger.Error("Recognizer returned an error",
			zap.String("sessionID", s.ID),
			zap.Int("code", protoErr.Code),
			zap.String("message", protoErr.Message),
			zap.String("sid", protoErr.SID))
		s.Fail(entities.OutcomeProtocolError, protoErr)
		if c.canFinalize() {
			c.requestStop()
			return
		}
		c.closeSession(entities.OutcomeProtocolError)
		return
	case err != nil:
		c.logger.Error("Failed to handle response", zap.String("sessionID", s.ID), zap.Error(err))
		return
	}

	if c.transcript.Append(rec.Fragment) {
		c.logger.Debug("Recognized fragment",
			zap.String("sessionID", s.ID),
			zap.String("fragment", rec.Fragment))
		c.observer.OnTranscript(s.ID, c.transcript.Text())
	}

	if rec.Terminal {
		c.logger.Info("Recognizer sent final response", zap.String("sessionID", s.ID), zap.String("sid", rec.SID))
		if c.canFinalize() {
			s.RequestStop()
			c.finalize()
		}
		c.closeSession(entities.OutcomeCompleted)
	}
}

func (c *Controller) handleTransportClosed() {
	if c.session.LastSent {
		c.closeSession(entities.OutcomeStopped)
		return
	}
	c.abort(entities.OutcomeTransportError, &domain.TransportError{
		Op:  "read",
		Err: errors.New("connection closed by recognizer"),
	})
}

// abort ends the session at once. Transport failures are never retried.
func (c *Controller) abort(outcome entities.SessionOutcome, err error) {
	c.logger.Error("Recognition session aborted",
		zap.String("sessionID", c.session.ID),
		zap.String("status", string(c.session.Status)),
		zap.Error(err))
	c.session.Fail(outcome, err)
	c.closeSession(outcome)
}

// closeSession releases every resource of the session and reports its record
func (c *Controller) closeSession(outcome entities.SessionOutcome) {
	s := c.session
	if s == nil || s.Status == entities.SessionStatusClosed {
		return
	}

	c.stopTicker()
	c.stopGraceTimer()
	c.stopCapture()
	if c.cancelConnect != nil {
		c.cancelConnect()
		c.cancelConnect = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Failed to close connection", zap.String("sessionID", s.ID), zap.Error(err))
		}
		c.conn = nil
	}

	now := c.now()
	s.Close(outcome, now)
	c.setRecording(false)

	record := entities.NewSessionRecord(s, c.transcript.Text())
	c.metrics.RecordSessionClosed(string(s.Outcome), s.Duration(now).Seconds())

	c.logger.Info("Recognition session closed",
		zap.String("sessionID", s.ID),
		zap.String("outcome", string(s.Outcome)),
		zap.Int("framesSent", s.FramesSent),
		zap.Int("framesDropped", s.FramesDropped),
		zap.Int("bytesSent", s.BytesSent),
		zap.Duration("duration", s.Duration(now)))

	c.observer.OnSessionClosed(record)
}

func (c *Controller) setRecording(recording bool) {
	if c.recording.Swap(recording) == recording {
		return
	}
	if !recording {
		c.metrics.RecordRecordingStopped()
	}
	if c.session != nil {
		c.observer.OnRecording(c.session.ID, recording)
	}
}

func (c *Controller) stopCapture() {
	if c.cancelCapture != nil {
		c.cancelCapture()
		c.cancelCapture = nil
	}
}

func (c *Controller) startTicker() {
	c.stopTicker()
	c.ticker = time.NewTicker(c.options.TickInterval)
}

func (c *Controller) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) armGraceTimer() {
	c.stopGraceTimer()
	generation := c.generation
	c.graceTimer = time.AfterFunc(c.options.CloseGrace, func() {
		c.post(event{kind: eventGraceExpired, generation: generation})
	})
}

func (c *Controller) stopGraceTimer() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}
