//go:build !portaudio

package audio

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
)

// ErrMicrophoneUnavailable is returned when the binary was built without PortAudio
var ErrMicrophoneUnavailable = errors.New("microphone capture requires building with -tags portaudio")

// MicrophoneSource is unavailable in this build
type MicrophoneSource struct {
	logger *zap.Logger
}

// NewMicrophoneSource creates a source that always fails
func NewMicrophoneSource(framesPerBuffer int, logger *zap.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

// Capture implements AudioSource
func (m *MicrophoneSource) Capture(ctx context.Context, sink io.Writer) error {
	m.logger.Error("Microphone capture unavailable", zap.Error(ErrMicrophoneUnavailable))
	return ErrMicrophoneUnavailable
}
