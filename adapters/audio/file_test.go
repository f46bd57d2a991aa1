package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap/zaptest"
)

type syncBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func samplePCM(samples int) []byte {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16((i%200 - 100) * 150)
		data[2*i] = byte(uint16(v))
		data[2*i+1] = byte(uint16(v) >> 8)
	}
	return data
}

func writeWAV(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := EncodeWAV(f, data); err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
}

func TestLoadPCM_RawFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.pcm")
	data := samplePCM(1000)
	if err := os.WriteFile(path, append(data, 0x7f), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := LoadPCM(path)
	if err != nil {
		t.Fatalf("LoadPCM failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %d bytes without the odd trailing byte, got %d", len(data), len(got))
	}
}

func TestLoadPCM_WAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	data := samplePCM(16000)
	writeWAV(t, path, data)

	got, err := LoadPCM(path)
	if err != nil {
		t.Fatalf("LoadPCM failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected decoded samples to match the encoded ones (%d bytes), got %d bytes", len(data), len(got))
	}
}

func TestLoadPCM_RejectsUnsupportedWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	enc := wav.NewEncoder(f, 44100, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: 44100},
		Data:           make([]int, 200),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	f.Close()

	if _, err := LoadPCM(path); err == nil {
		t.Error("Expected an error for a 44.1 kHz stereo file")
	}
}

func TestLoadPCM_MissingFile(t *testing.T) {
	if _, err := LoadPCM(filepath.Join(t.TempDir(), "missing.pcm")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestFileSource_WritesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.pcm")
	data := samplePCM(4000)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	sink := &syncBuffer{}
	source := NewFileSource(path, false, zaptest.NewLogger(t))
	if err := source.Capture(context.Background(), sink); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), data) {
		t.Errorf("Expected %d bytes, got %d", len(data), len(sink.Bytes()))
	}
	if sink.writes != 1 {
		t.Errorf("Expected a single write, got %d", sink.writes)
	}
}

func TestPace_ChunksInOrder(t *testing.T) {
	data := samplePCM(500)
	sink := &syncBuffer{}

	if err := pace(context.Background(), sink, data, 300, time.Millisecond); err != nil {
		t.Fatalf("pace failed: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), data) {
		t.Error("Expected paced output to equal the input")
	}
	if sink.writes != 4 {
		t.Errorf("Expected 4 writes of at most 300 bytes, got %d", sink.writes)
	}
}

func TestPace_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- pace(ctx, sink, samplePCM(16000), 100, time.Hour)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected pace to return after cancel")
	}
	if len(sink.Bytes()) != 100 {
		t.Errorf("Expected only the first chunk to be written, got %d bytes", len(sink.Bytes()))
	}
}

func TestBufferSource_CopiesInput(t *testing.T) {
	data := samplePCM(10)
	source := NewBufferSource(data, false)
	data[0] = 0xff

	sink := &syncBuffer{}
	if err := source.Capture(context.Background(), sink); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if sink.Bytes()[0] == 0xff {
		t.Error("Expected the source to keep its own copy of the data")
	}
}
