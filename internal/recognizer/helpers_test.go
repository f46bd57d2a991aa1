package recognizer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/auth"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/protocol"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  int
	sendErr error
}

func (c *fakeConn) SendText(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type sentFrame struct {
	status int
	audio  []byte
	msg    protocol.FrameMessage
}

func (c *fakeConn) sent(t *testing.T) []sentFrame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := make([]sentFrame, 0, len(c.frames))
	for _, raw := range c.frames {
		msg, audio, err := protocol.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("Sent frame does not decode: %v", err)
		}
		frames = append(frames, sentFrame{status: msg.Data.Status, audio: audio, msg: msg})
	}
	return frames
}

type fakeTransport struct {
	mu      sync.Mutex
	urls    []string
	conns   []*fakeConn
	openErr error
}

func (f *fakeTransport) Open(ctx context.Context, url string, handler repositories.TransportHandler) (repositories.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.openErr != nil {
		return nil, f.openErr
	}
	conn := &fakeConn{}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeTransport) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func (f *fakeTransport) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type recordingObserver struct {
	mu          sync.Mutex
	transcripts []string
	recording   []bool
	records     []entities.SessionRecord
}

func (o *recordingObserver) OnTranscript(sessionID, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, text)
}

func (o *recordingObserver) OnRecording(sessionID string, recording bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recording = append(o.recording, recording)
}

func (o *recordingObserver) OnSessionClosed(record entities.SessionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
}

func (o *recordingObserver) closed() []entities.SessionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]entities.SessionRecord(nil), o.records...)
}

// blockingSource produces nothing and ends only when cancelled; tests append to the buffer directly
type blockingSource struct{}

func (blockingSource) Capture(ctx context.Context, sink io.Writer) error {
	<-ctx.Done()
	return ctx.Err()
}

// staticSource writes data once and reports end of input
type staticSource struct {
	data []byte
}

func (s staticSource) Capture(ctx context.Context, sink io.Writer) error {
	_, err := sink.Write(s.data)
	return err
}

// holdingSource writes data once and keeps the input open until cancelled
type holdingSource struct {
	data []byte
}

func (s holdingSource) Capture(ctx context.Context, sink io.Writer) error {
	if _, err := sink.Write(s.data); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

type harness struct {
	controller *Controller
	transport  *fakeTransport
	observer   *recordingObserver
	metrics    *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	signer, err := auth.NewSigner("iat-api.xfyun.cn", "/v2/iat", "test-key", "test-secret")
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	options := DefaultOptions()
	options.AppID = "app-test"
	options.CloseGrace = time.Hour

	h := &harness{
		transport: &fakeTransport{},
		observer:  &recordingObserver{},
		metrics:   metrics.NewMetrics(prometheus.NewRegistry()),
	}
	c, err := NewController(zaptest.NewLogger(t), signer, h.transport, h.metrics, h.observer, options)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
	h.controller = c

	t.Cleanup(func() {
		c.stopTicker()
		c.stopGraceTimer()
		c.stopCapture()
	})
	return h
}

func (h *harness) start(t *testing.T, source repositories.AudioSource) (string, error) {
	t.Helper()
	ev := event{kind: eventStart, source: source, reply: make(chan result, 1)}
	h.controller.dispatch(ev)
	res := <-ev.reply
	return res.sessionID, res.err
}

func (h *harness) stop() error {
	ev := event{kind: eventStop, reply: make(chan result, 1)}
	h.controller.dispatch(ev)
	return (<-ev.reply).err
}

func (h *harness) tick() {
	h.controller.dispatch(event{kind: eventTick})
}

func (h *harness) message(raw string) {
	h.controller.dispatch(event{kind: eventMessage, generation: h.controller.generation, payload: []byte(raw)})
}

// await dispatches queued asynchronous events until one of kind has been applied
func (h *harness) await(t *testing.T, kind eventKind) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.controller.events:
			h.controller.dispatch(ev)
			if ev.kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s event", kind)
		}
	}
}

// connect fills the buffer to the threshold and completes the dial
func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	h.controller.buffer.Append(tone(h.controller.options.threshold()))
	h.tick()
	h.await(t, eventConnected)

	conn := h.transport.lastConn()
	if conn == nil {
		t.Fatal("Expected an open connection")
	}
	return conn
}

func (h *harness) status() entities.SessionStatus {
	return h.controller.session.Status
}

func tone(n int) []byte {
	data := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		data[i] = 0x10
		data[i+1] = 0x01
	}
	return data
}

func silence(n int) []byte {
	return make([]byte, n)
}
