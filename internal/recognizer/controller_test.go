package recognizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/audio"
	"github.com/satriahrh/suara/internal/auth"
)

func TestNewController_Validation(t *testing.T) {
	signer, _ := auth.NewSigner("iat-api.xfyun.cn", "/v2/iat", "key", "secret")

	options := DefaultOptions()
	if _, err := NewController(nil, signer, &fakeTransport{}, nil, nil, options); err == nil {
		t.Error("Expected error for missing app id")
	} else {
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "recognizer.app_id" {
			t.Errorf("Expected ConfigError for recognizer.app_id, got %v", err)
		}
	}

	options.AppID = "app"
	if _, err := NewController(nil, nil, &fakeTransport{}, nil, nil, options); err == nil {
		t.Error("Expected error for missing signer")
	}

	options.FrameSize = 0
	if _, err := NewController(nil, signer, &fakeTransport{}, nil, nil, options); err == nil {
		t.Error("Expected error for zero frame size")
	}
}

func TestController_ConnectsOnceThresholdReached(t *testing.T) {
	h := newHarness(t)
	if _, err := h.start(t, blockingSource{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	threshold := 2 * audio.FrameSize
	h.controller.buffer.Append(tone(threshold - 1))
	h.tick()
	if h.status() != entities.SessionStatusAwaitingBuffer {
		t.Fatalf("Expected awaiting_buffer below threshold, got %s", h.status())
	}

	h.controller.buffer.Append(tone(1))
	if h.status() != entities.SessionStatusAwaitingBuffer {
		t.Fatalf("Appending alone must not change status, got %s", h.status())
	}

	h.tick()
	if h.status() != entities.SessionStatusConnecting {
		t.Fatalf("Expected connecting on the tick after threshold, got %s", h.status())
	}

	h.await(t, eventConnected)
	if h.transport.opened() != 1 {
		t.Errorf("Expected exactly one dial, got %d", h.transport.opened())
	}

	url := h.transport.urls[0]
	for _, param := range []string{"authorization=", "date=", "host=iat-api.xfyun.cn"} {
		if !strings.Contains(url, param) {
			t.Errorf("Expected %s in connection URL %s", param, url)
		}
	}

	// More ticks must not dial again.
	h.tick()
	h.tick()
	if h.transport.opened() != 1 {
		t.Errorf("Expected no second dial, got %d", h.transport.opened())
	}
}

func TestController_FirstFrameSkipsSilence(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})

	h.controller.buffer.Append(silence(2 * audio.FrameSize))
	h.controller.buffer.Append(tone(audio.FrameSize))
	h.tick()
	h.await(t, eventConnected)
	conn := h.transport.lastConn()

	h.tick()
	h.tick()
	if len(conn.sent(t)) != 0 {
		t.Fatal("Silent frames must not be sent")
	}
	if h.controller.cursor != 2*audio.FrameSize {
		t.Errorf("Expected silent frames consumed, cursor at %d", h.controller.cursor)
	}
	if h.controller.session.FramesDropped != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", h.controller.session.FramesDropped)
	}

	h.tick()
	frames := conn.sent(t)
	if len(frames) != 1 {
		t.Fatalf("Expected one frame, got %d", len(frames))
	}
	first := frames[0]
	if first.status != 0 || first.msg.Common == nil || first.msg.Business == nil {
		t.Errorf("Expected a first frame with configuration, got status %d", first.status)
	}
	if first.msg.Common.AppID != "app-test" {
		t.Errorf("Expected app id app-test, got %s", first.msg.Common.AppID)
	}
	if len(first.audio) != audio.FrameSize {
		t.Errorf("Expected %d bytes, got %d", audio.FrameSize, len(first.audio))
	}
	if h.status() != entities.SessionStatusStreaming || !h.controller.session.SessionValid {
		t.Errorf("Expected valid streaming session, got %s", h.status())
	}
	if got := testutil.ToFloat64(h.metrics.FramesDropped); got != 2 {
		t.Errorf("Expected dropped counter 2, got %v", got)
	}
}

func TestController_StreamsFullFrames(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)

	h.controller.buffer.Append(tone(audio.FrameSize + 100))
	for i := 0; i < 5; i++ {
		h.tick()
	}

	frames := conn.sent(t)
	if len(frames) != 3 {
		t.Fatalf("Expected first and two continue frames, got %d", len(frames))
	}

	firstCount := 0
	for i, frame := range frames {
		if len(frame.audio) != audio.FrameSize {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, audio.FrameSize, len(frame.audio))
		}
		if frame.status == 0 {
			firstCount++
		}
		if i > 0 && (frame.status != 1 || frame.msg.Business != nil) {
			t.Errorf("Frame %d: expected bare continue frame, got status %d", i, frame.status)
		}
	}
	if firstCount != 1 {
		t.Errorf("Expected exactly one first frame, got %d", firstCount)
	}
	if h.controller.buffer.AvailableFrom(h.controller.cursor) != 100 {
		t.Errorf("Expected 100 bytes left, got %d", h.controller.buffer.AvailableFrom(h.controller.cursor))
	}
}

func TestController_StopSendsAllUnconsumedAudio(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)

	h.tick() // first frame, one frame left unconsumed
	h.controller.buffer.Append(tone(18000 - audio.FrameSize))
	if got := h.controller.buffer.AvailableFrom(h.controller.cursor); got != 18000 {
		t.Fatalf("Expected 18000 unconsumed bytes, got %d", got)
	}

	if err := h.stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	frames := conn.sent(t)
	last := frames[len(frames)-1]
	if last.status != 2 {
		t.Fatalf("Expected last frame, got status %d", last.status)
	}
	if len(last.audio) != 18000 {
		t.Errorf("Expected 18000 bytes in last frame, got %d", len(last.audio))
	}
	if h.status() != entities.SessionStatusFinalizing {
		t.Errorf("Expected finalizing during grace, got %s", h.status())
	}
	if h.controller.Recording() {
		t.Error("Recording flag should drop on stop")
	}
	if conn.closeCount() != 0 {
		t.Error("Connection must stay open during the close grace")
	}

	// A second stop and further ticks change nothing.
	if err := h.stop(); err != nil {
		t.Errorf("Second stop should be a no-op, got %v", err)
	}
	h.controller.buffer.Append(tone(2 * audio.FrameSize))
	h.tick()
	if len(conn.sent(t)) != len(frames) {
		t.Error("No frame may follow the last frame")
	}

	h.controller.dispatch(event{kind: eventGraceExpired, generation: h.controller.generation})
	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed after grace, got %s", h.status())
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected connection closed once, got %d", conn.closeCount())
	}
	if h.controller.session.Outcome != entities.OutcomeStopped {
		t.Errorf("Expected outcome stopped, got %s", h.controller.session.Outcome)
	}

	if err := h.stop(); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession after close, got %v", err)
	}
}

func TestController_NaturalEndSendsRemainder(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)

	h.controller.buffer.Append(tone(500))
	h.tick() // first
	h.tick() // continue
	h.controller.dispatch(event{kind: eventInputEnded, generation: h.controller.generation})
	h.tick() // last

	frames := conn.sent(t)
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	last := frames[2]
	if last.status != 2 || len(last.audio) != 500 {
		t.Errorf("Expected last frame with 500 bytes, got status %d with %d bytes", last.status, len(last.audio))
	}
	if len(last.audio) >= audio.FrameSize {
		t.Error("Natural end remainder must be shorter than a frame")
	}
}

func TestController_NaturalEndWithEmptyRemainder(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)

	h.tick()
	h.tick()
	h.controller.dispatch(event{kind: eventInputEnded, generation: h.controller.generation})
	h.tick()

	frames := conn.sent(t)
	last := frames[len(frames)-1]
	if last.status != 2 || len(last.audio) != 0 {
		t.Errorf("Expected empty last frame, got status %d with %d bytes", last.status, len(last.audio))
	}
}

func TestController_TranscriptFromResponses(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	h.connect(t)
	h.tick()

	h.message(`{"code":0,"data":{"status":1,"result":{"ws":[{"cw":[{"w":"你"}]},{"cw":[{"w":"好"}]}]}}}`)
	if got := h.controller.Transcript(); got != "你好" {
		t.Errorf("Expected transcript 你好, got %s", got)
	}
	if len(h.observer.transcripts) != 1 || h.observer.transcripts[0] != "你好" {
		t.Errorf("Expected observer to see 你好, got %v", h.observer.transcripts)
	}

	h.message(`{"code":0,"data":`)
	if h.status() != entities.SessionStatusStreaming {
		t.Errorf("Malformed response must not end the session, got %s", h.status())
	}
	if got := testutil.ToFloat64(h.metrics.ResponsesMalformed); got != 1 {
		t.Errorf("Expected malformed counter 1, got %v", got)
	}
	if got := h.controller.Transcript(); got != "你好" {
		t.Errorf("Malformed response must not change the transcript, got %s", got)
	}
}

func TestController_ProtocolErrorStopsSession(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)
	h.tick()
	h.message(`{"code":0,"data":{"status":1,"result":{"ws":[{"cw":[{"w":"早"}]}]}}}`)

	h.message(`{"code":10165,"message":"invalid handshake"}`)

	var protoErr *domain.ProtocolError
	if !errors.As(h.controller.session.Err, &protoErr) {
		t.Fatalf("Expected ProtocolError, got %v", h.controller.session.Err)
	}
	if protoErr.Message != "invalid handshake" {
		t.Errorf("Expected server message surfaced, got %s", protoErr.Message)
	}
	if h.controller.Transcript() != "早" {
		t.Errorf("Transcript must be unchanged, got %s", h.controller.Transcript())
	}
	if h.controller.Recording() {
		t.Error("Recording should stop on protocol error")
	}

	frames := conn.sent(t)
	if frames[len(frames)-1].status != 2 {
		t.Error("Expected a last frame after the protocol error")
	}

	h.controller.dispatch(event{kind: eventTransportClosed, generation: h.controller.generation})
	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed, got %s", h.status())
	}
	if h.controller.session.Outcome != entities.OutcomeProtocolError {
		t.Errorf("Expected outcome protocol_error, got %s", h.controller.session.Outcome)
	}
	if snap := h.controller.Snapshot(); snap.Err == nil {
		t.Error("Snapshot should carry the protocol error")
	}
}

func TestController_TerminalResponseClosesImmediately(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)
	h.tick()
	h.stop()

	h.message(`{"code":0,"data":{"status":2,"result":{"ws":[{"cw":[{"w":"。"}]}]}}}`)

	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed on terminal response, got %s", h.status())
	}
	if h.controller.session.Outcome != entities.OutcomeCompleted {
		t.Errorf("Expected outcome completed, got %s", h.controller.session.Outcome)
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected connection closed, got %d closes", conn.closeCount())
	}

	records := h.observer.closed()
	if len(records) != 1 || records[0].Transcript != "。" {
		t.Errorf("Expected one closed record with transcript, got %+v", records)
	}
}

func TestController_TerminalWhileStreamingSendsLast(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)
	h.tick()

	h.message(`{"code":0,"data":{"status":2}}`)

	lastCount := 0
	for _, frame := range conn.sent(t) {
		if frame.status == 2 {
			lastCount++
		}
	}
	if lastCount != 1 {
		t.Errorf("Expected exactly one last frame, got %d", lastCount)
	}
	if h.status() != entities.SessionStatusClosed {
		t.Errorf("Expected closed, got %s", h.status())
	}
}

func TestController_TransportErrorsAreNotRetried(t *testing.T) {
	h := newHarness(t)
	h.transport.openErr = errors.New("dial refused")
	h.start(t, blockingSource{})

	h.controller.buffer.Append(tone(2 * audio.FrameSize))
	h.tick()
	h.await(t, eventConnectFailed)

	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed after dial failure, got %s", h.status())
	}
	var transportErr *domain.TransportError
	if !errors.As(h.controller.session.Err, &transportErr) || transportErr.Op != "connect" {
		t.Errorf("Expected connect TransportError, got %v", h.controller.session.Err)
	}

	h.tick()
	h.tick()
	if h.transport.opened() != 1 {
		t.Errorf("Expected no retry, got %d dials", h.transport.opened())
	}
	if h.controller.ticker != nil {
		t.Error("Ticker should be stopped")
	}
}

func TestController_SendFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	conn := h.connect(t)
	conn.sendErr = errors.New("broken pipe")

	h.tick()

	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed after send failure, got %s", h.status())
	}
	if h.controller.session.Outcome != entities.OutcomeTransportError {
		t.Errorf("Expected transport_error, got %s", h.controller.session.Outcome)
	}
	if h.controller.session.SessionValid {
		t.Error("Session must not become valid when the first frame fails")
	}
}

func TestController_UnexpectedCloseIsTransportError(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	h.connect(t)
	h.tick()

	h.controller.dispatch(event{kind: eventTransportClosed, generation: h.controller.generation})
	if h.controller.session.Outcome != entities.OutcomeTransportError {
		t.Errorf("Expected transport_error, got %s", h.controller.session.Outcome)
	}
}

func TestController_StopBeforeConnecting(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	h.controller.buffer.Append(tone(100))

	if err := h.stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.status() != entities.SessionStatusClosed {
		t.Errorf("Expected closed, got %s", h.status())
	}
	if h.transport.opened() != 0 {
		t.Error("No connection should be attempted")
	}
	if h.controller.Recording() {
		t.Error("Recording flag should be reset")
	}
}

func TestController_StopWhileConnectingDiscardsLateConnection(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	h.controller.buffer.Append(tone(2 * audio.FrameSize))
	h.tick()

	h.stop()
	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed, got %s", h.status())
	}

	// The dial finishes after the stop and its connection must be released.
	h.await(t, eventConnected)
	conn := h.transport.lastConn()
	if conn != nil && conn.closeCount() != 1 {
		t.Errorf("Expected late connection closed, got %d closes", conn.closeCount())
	}
	if conn != nil && len(conn.sent(t)) != 0 {
		t.Error("No frame may be sent on a late connection")
	}
}

func TestController_StopConnectedBeforeFirstFrameSendsLast(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})
	h.controller.buffer.Append(silence(2 * audio.FrameSize))
	h.tick()
	h.await(t, eventConnected)
	conn := h.transport.lastConn()

	h.tick() // silent frame dropped, nothing sent
	if len(conn.sent(t)) != 0 {
		t.Fatal("Silent frames must not be sent")
	}

	if err := h.stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	frames := conn.sent(t)
	if len(frames) != 1 {
		t.Fatalf("Expected one last frame, got %d", len(frames))
	}
	last := frames[0]
	if last.status != 2 {
		t.Errorf("Expected last frame, got status %d", last.status)
	}
	if last.msg.Common != nil || last.msg.Business != nil {
		t.Error("Last frame must not carry the configuration block")
	}
	if len(last.audio) != audio.FrameSize {
		t.Errorf("Expected %d unconsumed bytes, got %d", audio.FrameSize, len(last.audio))
	}
	if h.status() != entities.SessionStatusFinalizing {
		t.Errorf("Expected finalizing during grace, got %s", h.status())
	}
	if conn.closeCount() != 0 {
		t.Error("Connection must stay open during the close grace")
	}

	h.controller.dispatch(event{kind: eventGraceExpired, generation: h.controller.generation})
	if h.status() != entities.SessionStatusClosed {
		t.Fatalf("Expected closed after grace, got %s", h.status())
	}
	if conn.closeCount() != 1 {
		t.Errorf("Expected connection closed once, got %d", conn.closeCount())
	}
}

func TestController_SilentInputEndSendsEmptyLast(t *testing.T) {
	h := newHarness(t)
	h.start(t, staticSource{data: silence(audio.FrameSize)})
	h.await(t, eventInputEnded)

	h.tick()
	h.await(t, eventConnected)
	conn := h.transport.lastConn()
	h.tick() // silent frame dropped
	h.tick() // input ended, last

	frames := conn.sent(t)
	if len(frames) != 1 {
		t.Fatalf("Expected one frame, got %d", len(frames))
	}
	if frames[0].status != 2 || len(frames[0].audio) != 0 {
		t.Errorf("Expected empty last frame, got status %d with %d bytes", frames[0].status, len(frames[0].audio))
	}
	if h.status() != entities.SessionStatusFinalizing {
		t.Errorf("Expected finalizing, got %s", h.status())
	}
}

func TestController_StartWhileRecording(t *testing.T) {
	h := newHarness(t)
	h.start(t, blockingSource{})

	if _, err := h.start(t, blockingSource{}); !errors.Is(err, domain.ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}
}

func TestController_StartClearsPreviousSession(t *testing.T) {
	h := newHarness(t)
	first, _ := h.start(t, blockingSource{})
	h.connect(t)
	h.tick()
	h.message(`{"code":0,"data":{"status":1,"result":{"ws":[{"cw":[{"w":"旧"}]}]}}}`)
	h.stop()

	// The first session is still in its close grace.
	second, err := h.start(t, blockingSource{})
	if err != nil {
		t.Fatalf("Start during grace failed: %v", err)
	}
	if first == second {
		t.Error("Expected a new session id")
	}
	if h.controller.Transcript() != "" {
		t.Errorf("Expected cleared transcript, got %s", h.controller.Transcript())
	}
	if h.controller.cursor != 0 || h.controller.buffer.Len() != 0 {
		t.Error("Expected cleared buffer and cursor")
	}
	if h.status() != entities.SessionStatusAwaitingBuffer {
		t.Errorf("Expected awaiting_buffer, got %s", h.status())
	}

	records := h.observer.closed()
	if len(records) != 1 || records[0].ID != first || records[0].Transcript != "旧" {
		t.Errorf("Expected the first session recorded, got %+v", records)
	}

	// Events of the first session no longer apply.
	h.controller.dispatch(event{kind: eventGraceExpired, generation: h.controller.generation - 1})
	if h.status() != entities.SessionStatusAwaitingBuffer {
		t.Errorf("Stale event changed status to %s", h.status())
	}
}

func TestController_ShortInputConnectsWithOneFrame(t *testing.T) {
	h := newHarness(t)
	h.start(t, staticSource{data: tone(audio.FrameSize + 10)})
	h.await(t, eventInputEnded)

	h.tick()
	h.await(t, eventConnected)
	conn := h.transport.lastConn()
	h.tick() // first
	h.tick() // last with the remaining 10 bytes

	frames := conn.sent(t)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if frames[1].status != 2 || len(frames[1].audio) != 10 {
		t.Errorf("Expected last frame with 10 bytes, got status %d with %d bytes", frames[1].status, len(frames[1].audio))
	}
}

func TestController_InputTooShortCloses(t *testing.T) {
	h := newHarness(t)
	h.start(t, staticSource{data: tone(100)})
	h.await(t, eventInputEnded)

	h.tick()
	if h.status() != entities.SessionStatusClosed {
		t.Errorf("Expected closed, got %s", h.status())
	}
	if h.transport.opened() != 0 {
		t.Error("No connection should be attempted")
	}
}

func TestController_SnapshotBeforeStart(t *testing.T) {
	h := newHarness(t)
	snap := h.controller.Snapshot()
	if snap.Status != entities.SessionStatusIdle || snap.Recording {
		t.Errorf("Expected idle snapshot, got %+v", snap)
	}
	if err := h.stop(); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got %v", err)
	}
}
