package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	pcm "github.com/satriahrh/suara/internal/audio"
)

const (
	// PaceInterval is the real-time pacing step of a file source
	PaceInterval = 40 * time.Millisecond
	// PaceChunk is 40 ms of PCM16 mono 16 kHz audio
	PaceChunk = pcm.SampleRate * pcm.BytesPerSample * 40 / 1000
)

// FileSource replays a .pcm or .wav file as if it were captured live
type FileSource struct {
	path     string
	realtime bool
	logger   *zap.Logger
}

// NewFileSource creates a file source. Without realtime the whole file is appended at once.
func NewFileSource(path string, realtime bool, logger *zap.Logger) *FileSource {
	return &FileSource{path: path, realtime: realtime, logger: logger}
}

// Capture implements AudioSource. End of file is end of input.
func (s *FileSource) Capture(ctx context.Context, sink io.Writer) error {
	data, err := LoadPCM(s.path)
	if err != nil {
		return err
	}

	s.logger.Info("Replaying audio file",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)),
		zap.Int("durationMs", pcm.DurationMs(len(data))),
		zap.Bool("realtime", s.realtime))

	if !s.realtime {
		_, err := sink.Write(data)
		return err
	}
	return pace(ctx, sink, data, PaceChunk, PaceInterval)
}

// pace writes data in chunk-sized pieces, one per interval
func pace(ctx context.Context, sink io.Writer, data []byte, chunk int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for offset := 0; offset < len(data); {
		end := offset + chunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := sink.Write(data[offset:end]); err != nil {
			return err
		}
		offset = end

		if offset < len(data) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	return nil
}

// LoadPCM reads PCM16LE mono 16 kHz samples from a raw .pcm file or a .wav file
func LoadPCM(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return DecodeWAV(f)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	// A trailing odd byte is not a sample.
	return data[:len(data)-len(data)%pcm.BytesPerSample], nil
}

// DecodeWAV returns the PCM16LE payload of a 16 kHz mono 16-bit WAV stream
func DecodeWAV(r io.ReadSeeker) ([]byte, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate != pcm.SampleRate || dec.NumChans != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported wav format %d Hz, %d channels, %d bit; need %d Hz mono 16 bit",
			dec.SampleRate, dec.NumChans, dec.BitDepth, pcm.SampleRate)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}

	out := make([]byte, len(buf.Data)*pcm.BytesPerSample)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(out[i*pcm.BytesPerSample:], uint16(int16(sample)))
	}
	return out, nil
}

// EncodeWAV writes PCM16LE mono 16 kHz samples as a WAV stream
func EncodeWAV(w io.WriteSeeker, data []byte) error {
	samples := len(data) / pcm.BytesPerSample
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  pcm.SampleRate,
		},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	for i := 0; i < samples; i++ {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(data[i*pcm.BytesPerSample:])))
	}

	enc := wav.NewEncoder(w, pcm.SampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	return enc.Close()
}

// BufferSource appends an in-memory clip, optionally paced like a live capture
type BufferSource struct {
	data     []byte
	realtime bool
}

// NewBufferSource creates a source over a copy of data
func NewBufferSource(data []byte, realtime bool) *BufferSource {
	return &BufferSource{data: bytes.Clone(data), realtime: realtime}
}

// Capture implements AudioSource
func (s *BufferSource) Capture(ctx context.Context, sink io.Writer) error {
	if !s.realtime {
		_, err := sink.Write(s.data)
		return err
	}
	return pace(ctx, sink, s.data, PaceChunk, PaceInterval)
}
