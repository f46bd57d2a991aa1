package recognizer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/audio"
	"github.com/satriahrh/suara/internal/auth"
)

// handleTick takes at most one scheduling decision for the current session
func (c *Controller) handleTick() {
	s := c.session
	if s == nil {
		return
	}

	switch s.Status {
	case entities.SessionStatusAwaitingBuffer:
		c.awaitBuffer()
	case entities.SessionStatusConnecting:
		if s.Connected {
			c.sendFirst()
		}
	case entities.SessionStatusStreaming:
		c.stream()
	}
}

func (c *Controller) awaitBuffer() {
	available := c.buffer.AvailableFrom(c.cursor)
	if available < c.options.threshold() {
		if !c.session.InputEnded {
			return
		}
		// Short inputs still connect as long as one frame exists.
		if available < c.options.FrameSize {
			c.logger.Info("Input ended before a full frame was buffered",
				zap.String("sessionID", c.session.ID),
				zap.Int("bufferedBytes", available))
			c.session.RequestStop()
			c.closeSession(entities.OutcomeStopped)
			return
		}
	}
	c.connect()
}

// connect signs a fresh URL and dials in the background; the result comes back as an event
func (c *Controller) connect() {
	if err := c.session.BeginConnecting(); err != nil {
		c.logger.Error("Failed to begin connecting", zap.String("sessionID", c.session.ID), zap.Error(err))
		return
	}

	url := c.signer.URL(c.options.Scheme, c.now())
	c.logger.Info("Connecting to recognizer",
		zap.String("sessionID", c.session.ID),
		zap.String("url", auth.RedactURL(url)))

	ctx, cancel := context.WithTimeout(context.Background(), c.options.ConnectTimeout)
	c.cancelConnect = cancel
	generation := c.generation
	handler := &connectionHandler{controller: c, generation: generation}

	go func() {
		defer cancel()
		conn, err := c.transport.Open(ctx, url, handler)
		if err != nil {
			c.post(event{kind: eventConnectFailed, generation: generation, err: err})
			return
		}
		c.post(event{kind: eventConnected, generation: generation, conn: conn})
	}()
}

func (c *Controller) sendFirst() {
	s := c.session
	if s.InputEnded && c.buffer.AvailableFrom(c.cursor) < c.options.FrameSize {
		c.logger.Info("Input ended before any non-silent frame", zap.String("sessionID", s.ID))
		s.RequestStop()
		c.finalize()
		return
	}

	frame, next, ok := c.takeFrame()
	if !ok {
		return
	}
	if err := c.transmit(entities.FrameStateFirst, frame); err != nil {
		return
	}
	c.cursor = next
	if err := s.MarkFirstSent(len(frame)); err != nil {
		c.logger.Error("Failed to record first frame", zap.String("sessionID", s.ID), zap.Error(err))
		return
	}
	level := audio.MeasureLevel(frame)
	c.logger.Info("First frame sent",
		zap.String("sessionID", s.ID),
		zap.Int("bytes", len(frame)),
		zap.Int("peak", level.Peak),
		zap.Float64("dbfs", level.DBFS))
}

func (c *Controller) stream() {
	s := c.session
	if frame, next, ok := c.takeFrame(); ok {
		if err := c.transmit(entities.FrameStateContinue, frame); err != nil {
			return
		}
		c.cursor = next
		if err := s.MarkContinueSent(len(frame)); err != nil {
			c.logger.Error("Failed to record frame", zap.String("sessionID", s.ID), zap.Error(err))
		}
		return
	}

	if s.InputEnded && c.buffer.AvailableFrom(c.cursor) < c.options.FrameSize {
		c.logger.Info("Input ended, finalizing", zap.String("sessionID", s.ID))
		s.RequestStop()
		c.finalize()
	}
}

// finalize sends every unconsumed byte as the Last frame and arms the close grace
func (c *Controller) finalize() {
	s := c.session
	c.stopCapture()
	c.stopTicker()
	c.setRecording(false)

	if err := s.BeginFinalizing(); err != nil {
		c.logger.Error("Failed to begin finalizing", zap.String("sessionID", s.ID), zap.Error(err))
		c.closeSession(entities.OutcomeStopped)
		return
	}

	payload, next := c.buffer.ReadFrame(c.cursor, -1)
	if err := c.transmit(entities.FrameStateLast, payload); err != nil {
		return
	}
	c.cursor = next
	if err := s.MarkLastSent(len(payload)); err != nil {
		c.logger.Error("Failed to record last frame", zap.String("sessionID", s.ID), zap.Error(err))
	}

	c.logger.Info("Last frame sent",
		zap.String("sessionID", s.ID),
		zap.Int("bytes", len(payload)),
		zap.Duration("closeGrace", c.options.CloseGrace))
	c.armGraceTimer()
}

// takeFrame returns the next full frame and the cursor past it. Silent frames
// are consumed here and reported as not sendable.
func (c *Controller) takeFrame() ([]byte, int, bool) {
	if c.buffer.AvailableFrom(c.cursor) < c.options.FrameSize {
		return nil, c.cursor, false
	}

	frame, next := c.buffer.ReadFrame(c.cursor, c.options.FrameSize)
	if c.options.DropSilentFrames && audio.IsSilent(frame) {
		c.cursor = next
		c.session.MarkDropped()
		c.metrics.RecordFrameDropped()
		c.logger.Debug("Dropped silent frame",
			zap.String("sessionID", c.session.ID),
			zap.Int("cursor", c.cursor))
		return nil, c.cursor, false
	}
	return frame, next, true
}

// transmit encodes and queues one frame. A failure aborts the session.
func (c *Controller) transmit(state entities.FrameState, payload []byte) error {
	err := c.send(state, payload)
	if err != nil {
		c.abort(entities.OutcomeTransportError, &domain.TransportError{Op: "send " + state.String(), Err: err})
		return err
	}
	c.metrics.RecordFrameSent(state.String(), len(payload))
	return nil
}

func (c *Controller) send(state entities.FrameState, payload []byte) error {
	if c.conn == nil {
		return errors.New("no open connection")
	}
	data, err := c.encoder.Encode(state, payload)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return c.conn.SendText(data)
}
