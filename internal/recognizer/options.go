package recognizer

import (
	"time"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/internal/audio"
	"github.com/satriahrh/suara/internal/protocol"
)

// Options tunes the frame scheduler and the protocol envelopes of a Controller
type Options struct {
	AppID    string
	Scheme   string
	Business protocol.Business

	// FrameSize is the payload of every frame except the last
	FrameSize int
	// BufferedFrames is how many frames must be buffered before connecting
	BufferedFrames int
	// TickInterval is the scheduler period
	TickInterval time.Duration
	// CloseGrace is how long the connection stays open after the last frame
	CloseGrace time.Duration
	// ConnectTimeout bounds the dial of one connection attempt
	ConnectTimeout time.Duration
	// DropSilentFrames consumes all-zero frames without sending them
	DropSilentFrames bool
}

// DefaultOptions returns the timing the recognizer expects for 16 kHz mono PCM
func DefaultOptions() Options {
	return Options{
		Scheme:           "wss",
		Business:         protocol.DefaultBusiness(),
		FrameSize:        audio.FrameSize,
		BufferedFrames:   2,
		TickInterval:     40 * time.Millisecond,
		CloseGrace:       time.Second,
		ConnectTimeout:   10 * time.Second,
		DropSilentFrames: true,
	}
}

func (o Options) threshold() int {
	return o.FrameSize * o.BufferedFrames
}

func (o Options) validate() error {
	switch {
	case o.AppID == "":
		return &domain.ConfigError{Field: "recognizer.app_id", Reason: "cannot be empty"}
	case o.Scheme != "ws" && o.Scheme != "wss":
		return &domain.ConfigError{Field: "recognizer.scheme", Reason: "must be ws or wss"}
	case o.FrameSize <= 0:
		return &domain.ConfigError{Field: "stream.frame_size", Reason: "must be positive"}
	case o.FrameSize%audio.BytesPerSample != 0:
		return &domain.ConfigError{Field: "stream.frame_size", Reason: "must hold whole samples"}
	case o.BufferedFrames < 1:
		return &domain.ConfigError{Field: "stream.buffered_frames", Reason: "must be at least 1"}
	case o.TickInterval <= 0:
		return &domain.ConfigError{Field: "stream.tick_interval", Reason: "must be positive"}
	case o.CloseGrace < 0:
		return &domain.ConfigError{Field: "stream.close_grace", Reason: "cannot be negative"}
	}
	return nil
}
