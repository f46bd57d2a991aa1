//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	pcm "github.com/satriahrh/suara/internal/audio"
)

// MicrophoneSource captures 16 kHz mono int16 samples from the default input device
type MicrophoneSource struct {
	framesPerBuffer int
	logger          *zap.Logger
}

// NewMicrophoneSource creates a microphone source reading framesPerBuffer samples per block
func NewMicrophoneSource(framesPerBuffer int, logger *zap.Logger) *MicrophoneSource {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 640
	}
	return &MicrophoneSource{framesPerBuffer: framesPerBuffer, logger: logger}
}

// Capture implements AudioSource. It records until ctx is cancelled.
func (m *MicrophoneSource) Capture(ctx context.Context, sink io.Writer) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init failed: %w", err)
	}
	defer portaudio.Terminate()

	in := make([]int16, m.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(pcm.SampleRate), len(in), in)
	if err != nil {
		return fmt.Errorf("open stream failed: %w", err)
	}
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
	}()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream failed: %w", err)
	}
	m.logger.Info("Microphone capture started", zap.Int("framesPerBuffer", m.framesPerBuffer))

	block := make([]byte, len(in)*pcm.BytesPerSample)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Microphone capture stopped")
			return ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			// Overflows drop a block but keep the stream usable.
			if err == portaudio.InputOverflowed {
				m.logger.Warn("Microphone input overflowed")
				continue
			}
			return fmt.Errorf("stream read failed: %w", err)
		}

		for i, sample := range in {
			binary.LittleEndian.PutUint16(block[i*pcm.BytesPerSample:], uint16(sample))
		}
		if _, err := sink.Write(block); err != nil {
			return err
		}
	}
}
