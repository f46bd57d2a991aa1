// Package iattest provides an in-process recognizer that speaks the streaming
// dictation protocol, for tests and local development.
package iattest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/internal/protocol"
)

// Path is the endpoint the fake recognizer serves
const Path = "/v2/iat"

// Script controls how the fake recognizer answers
type Script struct {
	// Fragments[i] is replied after the i-th non-final audio frame
	Fragments []string
	// Final is the text of the terminal response sent after the Last frame
	Final string
	// ErrorCode, when non-zero, is answered to the First frame before the connection is closed
	ErrorCode    int
	ErrorMessage string
	// ReplyDelay is waited before every reply
	ReplyDelay time.Duration
}

// Frame is one audio frame received by the fake recognizer
type Frame struct {
	Status  int
	AppID   string
	Audio   []byte
	Message protocol.FrameMessage
}

// Handler is the websocket handler of the fake recognizer
type Handler struct {
	script   Script
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	frames   []Frame
	sessions int
}

// NewHandler creates a fake recognizer handler
func NewHandler(script Script, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		script: script,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP checks the signed query and runs one recognition session per connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, param := range []string{"authorization", "date", "host"} {
		if q.Get(param) == "" {
			http.Error(w, "missing "+param, http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.sessions++
	sid := fmt.Sprintf("iat-fake-%03d", h.sessions)
	h.mu.Unlock()

	h.serve(conn, sid)
}

func (h *Handler) serve(conn *websocket.Conn, sid string) {
	audioFrames := 0
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, audio, err := protocol.DecodeFrame(raw)
		if err != nil {
			h.reply(conn, protocol.Response{Code: 10160, Message: "parse request json error", SID: sid})
			continue
		}

		frame := Frame{Status: msg.Data.Status, Audio: audio, Message: msg}
		if msg.Common != nil {
			frame.AppID = msg.Common.AppID
		}
		h.mu.Lock()
		h.frames = append(h.frames, frame)
		h.mu.Unlock()

		if h.script.ErrorCode != 0 {
			h.reply(conn, protocol.Response{Code: h.script.ErrorCode, Message: h.script.ErrorMessage, SID: sid})
			h.closeNormally(conn)
			return
		}

		if msg.Data.Status == protocol.StatusFinal {
			h.reply(conn, result(sid, protocol.StatusFinal, h.script.Final))
			h.closeNormally(conn)
			return
		}

		if audioFrames < len(h.script.Fragments) {
			h.reply(conn, result(sid, 1, h.script.Fragments[audioFrames]))
		}
		audioFrames++
	}
}

func (h *Handler) reply(conn *websocket.Conn, resp protocol.Response) {
	if h.script.ReplyDelay > 0 {
		time.Sleep(h.script.ReplyDelay)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (h *Handler) closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func result(sid string, status int, text string) protocol.Response {
	resp := protocol.Response{
		Code:    0,
		Message: "success",
		SID:     sid,
		Data:    &protocol.ResponseData{Status: status},
	}
	if text != "" {
		words := make([]protocol.Word, 0, len([]rune(text)))
		for _, r := range text {
			words = append(words, protocol.Word{Cw: []protocol.Candidate{{W: string(r)}}})
		}
		resp.Data.Result = &protocol.Result{Ws: words}
	}
	return resp
}

// Frames returns every frame received so far, across sessions
func (h *Handler) Frames() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frame(nil), h.frames...)
}

// Sessions returns how many connections were accepted
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions
}

// Server is a Handler listening on a local httptest server
type Server struct {
	*Handler
	HTTP *httptest.Server
}

// NewServer starts a fake recognizer on a loopback port
func NewServer(script Script) *Server {
	handler := NewHandler(script, nil)
	mux := http.NewServeMux()
	mux.Handle(Path, handler)
	return &Server{Handler: handler, HTTP: httptest.NewServer(mux)}
}

// Host returns host:port for signing connection URLs
func (s *Server) Host() string {
	return strings.TrimPrefix(s.HTTP.URL, "http://")
}

// Close shuts the server down
func (s *Server) Close() {
	s.HTTP.Close()
}
