// Command transcribe streams one PCM or WAV file through a recognition session
// and prints the transcript as it grows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	audiosource "github.com/satriahrh/suara/adapters/audio"
	"github.com/satriahrh/suara/adapters/transport"
	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/auth"
	"github.com/satriahrh/suara/internal/config"
	"github.com/satriahrh/suara/internal/recognizer"
)

// printer writes transcript updates to stdout and reports the closed session
type printer struct {
	closed chan entities.SessionRecord
}

func (p *printer) OnTranscript(sessionID, text string) {
	fmt.Printf("\r%s", text)
}

func (p *printer) OnRecording(sessionID string, recording bool) {}

func (p *printer) OnSessionClosed(record entities.SessionRecord) {
	select {
	case p.closed <- record:
	default:
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("SUARA_CONFIG"), "path to a YAML config file")
	file := flag.String("file", "", "PCM16LE 16 kHz mono .pcm or .wav file to transcribe")
	realtime := flag.Bool("realtime", false, "pace the file like a live capture")
	timeout := flag.Duration("timeout", 2*time.Minute, "give up after this long")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: transcribe -file audio.wav [-realtime] [-config suara.yaml]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	record, err := transcribe(cfg, *file, *realtime, *timeout, logger)
	fmt.Println()
	if err != nil {
		logger.Fatal("Transcription failed", zap.Error(err))
	}

	logger.Info("Transcription finished",
		zap.String("sessionID", record.ID),
		zap.String("outcome", string(record.Outcome)),
		zap.Int("framesSent", record.FramesSent),
		zap.Int("framesDropped", record.FramesDropped),
		zap.Int64("durationMs", record.DurationMs()))
	if record.Error != "" {
		os.Exit(1)
	}
}

func transcribe(cfg *config.Config, file string, realtime bool, timeout time.Duration, logger *zap.Logger) (entities.SessionRecord, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	signer, err := auth.NewSigner(cfg.Recognizer.Host, cfg.Recognizer.Path, cfg.Recognizer.APIKey, cfg.Recognizer.APISecret)
	if err != nil {
		return entities.SessionRecord{}, err
	}

	out := &printer{closed: make(chan entities.SessionRecord, 1)}
	controller, err := recognizer.NewController(
		logger.Named("recognizer"),
		signer,
		transport.NewWebsocketTransport(cfg.Recognizer.HandshakeTimeout, logger.Named("transport")),
		nil,
		out,
		cfg.RecognizerOptions(),
	)
	if err != nil {
		return entities.SessionRecord{}, err
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go controller.Run(runCtx)

	source := audiosource.NewFileSource(file, realtime, logger.Named("audio"))
	if _, err := controller.Start(ctx, source); err != nil {
		return entities.SessionRecord{}, err
	}

	select {
	case record := <-out.closed:
		return record, nil
	case <-ctx.Done():
		logger.Warn("Interrupted, stopping session", zap.Error(ctx.Err()))
		stopCtx, cancelStop := context.WithTimeout(context.Background(), time.Second)
		defer cancelStop()
		if err := controller.Stop(stopCtx); err != nil {
			return entities.SessionRecord{}, err
		}
		select {
		case record := <-out.closed:
			return record, nil
		case <-time.After(cfg.Stream.CloseGrace + time.Second):
			return entities.SessionRecord{}, ctx.Err()
		}
	}
}
