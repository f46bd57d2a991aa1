// Command suaractl drives a running suara service: it authenticates, follows the
// live updates and starts and stops a recording.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/internal/api"
	"github.com/satriahrh/suara/internal/config"
)

type client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *zap.Logger
}

func main() {
	server := flag.String("server", "http://localhost:8080", "suara service base URL")
	clientID := flag.String("client-id", "suaractl", "operator client id")
	secret := flag.String("secret", os.Getenv("SUARA_ADMIN_SECRET"), "operator secret")
	record := flag.Bool("record", true, "start a recording and stop it on interrupt")
	flag.Parse()

	logger, err := config.NewLogger(config.LoggingConfig{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	base, err := url.Parse(*server)
	if err != nil {
		logger.Fatal("Invalid server URL", zap.Error(err))
	}
	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}, logger: logger}

	// First, authenticate and get a JWT token
	if err := c.authenticate(*clientID, *secret); err != nil {
		logger.Fatal("Failed to authenticate", zap.Error(err))
	}
	logger.Info("Authenticated", zap.String("clientID", *clientID))

	conn, err := c.follow()
	if err != nil {
		logger.Fatal("Failed to connect to live updates", zap.Error(err))
	}
	defer conn.Close()

	closed := make(chan domain.UpdateMessage, 1)
	done := make(chan struct{})
	go handleUpdates(conn, logger, closed, done)

	if *record {
		var started api.StartResponse
		if err := c.post("/api/v1/recording/start", &started); err != nil {
			logger.Fatal("Failed to start recording", zap.Error(err))
		}
		logger.Info("Recording started, press Ctrl+C to stop", zap.String("sessionID", started.SessionID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-done:
		return
	case msg := <-closed:
		logger.Info("Session closed", zap.String("outcome", msg.Outcome), zap.String("transcript", msg.Text))
		return
	case <-ctx.Done():
	}

	if *record {
		if err := c.post("/api/v1/recording/stop", nil); err != nil {
			logger.Warn("Failed to stop recording", zap.Error(err))
		}
		select {
		case msg := <-closed:
			logger.Info("Session closed", zap.String("outcome", msg.Outcome), zap.String("transcript", msg.Text))
		case <-time.After(5 * time.Second):
			logger.Warn("Timed out waiting for the session to close")
		}
	}

	// Cleanly close the connection by sending a close message.
	err = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Warn("Failed to write close", zap.Error(err))
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func (c *client) authenticate(clientID, secret string) error {
	body, err := json.Marshal(api.AuthRequest{ClientID: clientID, Secret: secret})
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.base.JoinPath("/api/v1/auth").String(), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var authResp api.AuthResponse
	if err := decodeResponse(resp, http.StatusOK, &authResp); err != nil {
		return err
	}
	c.token = authResp.Token
	return nil
}

func (c *client) post(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodPost, c.base.JoinPath(path).String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, http.StatusAccepted, out)
}

func (c *client) follow() (*websocket.Conn, error) {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+c.token)

	c.logger.Info("Connecting", zap.String("url", u.String()))
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	return conn, err
}

func decodeResponse(resp *http.Response, want int, out interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func handleUpdates(conn *websocket.Conn, logger *zap.Logger, closed chan<- domain.UpdateMessage, done chan struct{}) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("Read failed", zap.Error(err))
			}
			return
		}

		var msg domain.UpdateMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("Unmarshal failed", zap.Error(err))
			continue
		}

		switch msg.Type {
		case domain.UpdateTranscript:
			fmt.Printf("\r%s", msg.Text)
		case domain.UpdateRecording:
			logger.Info("Recording changed", zap.String("sessionID", msg.SessionID), zap.Bool("recording", msg.Recording))
		case domain.UpdateSessionClosed:
			fmt.Println()
			select {
			case closed <- msg:
			default:
			}
		}
	}
}
