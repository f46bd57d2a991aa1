package repositories

import (
	"context"
	"io"
)

// AudioSource produces PCM16LE mono 16 kHz samples
type AudioSource interface {
	// Capture appends samples to sink until ctx is cancelled or the input ends.
	// A nil error means the producer finished and no more data will follow.
	Capture(ctx context.Context, sink io.Writer) error
}
