package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/suara/adapters"
	audiosource "github.com/satriahrh/suara/adapters/audio"
	"github.com/satriahrh/suara/adapters/mongo"
	"github.com/satriahrh/suara/adapters/transport"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/api"
	"github.com/satriahrh/suara/internal/auth"
	"github.com/satriahrh/suara/internal/config"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/recognizer"
	"github.com/satriahrh/suara/internal/websocket"
	"github.com/satriahrh/suara/usecase"
)

const memoryHistoryCapacity = 500

func main() {
	configPath := flag.String("config", os.Getenv("SUARA_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	tokens, err := auth.NewTokenIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	if err != nil {
		return fmt.Errorf("server.jwt_secret: %w", err)
	}

	signer, err := auth.NewSigner(cfg.Recognizer.Host, cfg.Recognizer.Path, cfg.Recognizer.APIKey, cfg.Recognizer.APISecret)
	if err != nil {
		return err
	}

	transcripts, closeStorage, err := newTranscriptRepository(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	// Initialize WebSocket hub and the recording service it broadcasts for
	hub := websocket.NewHub(logger.Named("hub"))
	service := usecase.NewRecordingService(transcripts, hub, newSourceFactory(cfg.Audio, logger), logger.Named("recording"))

	controller, err := recognizer.NewController(
		logger.Named("recognizer"),
		signer,
		transport.NewWebsocketTransport(cfg.Recognizer.HandshakeTimeout, logger.Named("transport")),
		m,
		service,
		cfg.RecognizerOptions(),
	)
	if err != nil {
		return err
	}
	service.Bind(controller)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	api.InitRoutes(e, api.Dependencies{
		Recording:   service,
		Hub:         hub,
		Tokens:      tokens,
		AdminSecret: cfg.Server.AdminSecret,
		Metrics:     m,
		Gatherer:    registry,
	}, logger.Named("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return controller.Run(gctx) })
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		logger.Info("Server started", zap.String("address", cfg.Server.Address))
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newTranscriptRepository(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (repositories.TranscriptRepository, func(), error) {
	if cfg.Driver != "mongo" {
		logger.Info("Using in-memory session history", zap.Int("capacity", memoryHistoryCapacity))
		return adapters.NewMemoryTranscriptRepository(memoryHistoryCapacity), func() {}, nil
	}

	client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.Database, logger.Named("mongo"))
	if err != nil {
		return nil, nil, err
	}
	repo := mongo.NewTranscriptRepository(client.Database, cfg.Collection, logger.Named("mongo"))
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure session indexes", zap.Error(err))
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(ctx)
	}
	return repo, closeFn, nil
}

func newSourceFactory(cfg config.AudioConfig, logger *zap.Logger) usecase.SourceFactory {
	return func() (repositories.AudioSource, error) {
		switch cfg.Source {
		case "file":
			return audiosource.NewFileSource(cfg.File, cfg.Realtime, logger.Named("audio")), nil
		case "microphone":
			return audiosource.NewMicrophoneSource(cfg.FramesPerBuffer, logger.Named("audio")), nil
		default:
			return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
		}
	}
}
