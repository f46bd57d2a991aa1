package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/suara/domain"
	"github.com/satriahrh/suara/internal/audio"
	"github.com/satriahrh/suara/internal/protocol"
	"github.com/satriahrh/suara/internal/recognizer"
)

// Config represents the complete service configuration
type Config struct {
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Stream     StreamConfig     `yaml:"stream"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Audio      AudioConfig      `yaml:"audio"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RecognizerConfig contains the account credentials and endpoint of the recognizer
type RecognizerConfig struct {
	AppID            string            `yaml:"app_id"`
	APIKey           string            `yaml:"api_key"`
	APISecret        string            `yaml:"api_secret"`
	Host             string            `yaml:"host"`
	Path             string            `yaml:"path"`
	Scheme           string            `yaml:"scheme"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	Business         protocol.Business `yaml:"business"`
}

// StreamConfig contains the frame scheduler parameters
type StreamConfig struct {
	FrameSize        int           `yaml:"frame_size"` // bytes
	BufferedFrames   int           `yaml:"buffered_frames"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	CloseGrace       time.Duration `yaml:"close_grace"`
	DropSilentFrames bool          `yaml:"drop_silent_frames"`
}

// ServerConfig contains the control API configuration
type ServerConfig struct {
	Address     string        `yaml:"address"`
	JWTSecret   string        `yaml:"jwt_secret"`
	AdminSecret string        `yaml:"admin_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// StorageConfig selects where finished sessions are kept
type StorageConfig struct {
	Driver     string `yaml:"driver"` // memory or mongo
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// AudioConfig selects the audio source used by recordings started through the API
type AudioConfig struct {
	Source          string `yaml:"source"` // file or microphone
	File            string `yaml:"file"`
	Realtime        bool   `yaml:"realtime"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Recognizer: RecognizerConfig{
			Host:             "iat-api.xfyun.cn",
			Path:             "/v2/iat",
			Scheme:           "wss",
			HandshakeTimeout: 10 * time.Second,
			Business:         protocol.DefaultBusiness(),
		},
		Stream: StreamConfig{
			FrameSize:        audio.FrameSize,
			BufferedFrames:   2,
			TickInterval:     40 * time.Millisecond,
			CloseGrace:       time.Second,
			DropSilentFrames: true,
		},
		Server: ServerConfig{
			Address:  ":8080",
			TokenTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver:     "memory",
			Database:   "suara",
			Collection: "sessions",
		},
		Audio: AudioConfig{
			Source:          "microphone",
			Realtime:        true,
			FramesPerBuffer: 640,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (skipped when
// path is empty), then .env, then the environment. The result is validated.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// LoadEnvFile loads variables from the given files into the environment. Missing files are ignored.
func LoadEnvFile(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv() error {
	setString(&c.Recognizer.AppID, "IAT_APP_ID")
	setString(&c.Recognizer.APIKey, "IAT_API_KEY")
	setString(&c.Recognizer.APISecret, "IAT_API_SECRET")
	setString(&c.Recognizer.Host, "IAT_HOST")
	setString(&c.Recognizer.Path, "IAT_PATH")
	setString(&c.Recognizer.Scheme, "IAT_SCHEME")
	setString(&c.Server.Address, "SUARA_ADDR")
	setString(&c.Server.JWTSecret, "SUARA_JWT_SECRET")
	setString(&c.Server.AdminSecret, "SUARA_ADMIN_SECRET")
	setString(&c.Storage.Driver, "SUARA_STORAGE")
	setString(&c.Storage.MongoURI, "MONGODB_URI")
	setString(&c.Storage.Database, "MONGODB_DATABASE")
	setString(&c.Audio.Source, "SUARA_AUDIO_SOURCE")
	setString(&c.Audio.File, "SUARA_AUDIO_FILE")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	if v, ok := os.LookupEnv("SUARA_DROP_SILENT_FRAMES"); ok && v != "" {
		drop, err := strconv.ParseBool(v)
		if err != nil {
			return &domain.ConfigError{Field: "stream.drop_silent_frames", Reason: "must be a boolean"}
		}
		c.Stream.DropSilentFrames = drop
	}
	return nil
}

func setString(field *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*field = v
	}
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Recognizer.Validate(); err != nil {
		return err
	}
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Validate fails fast on missing credentials, before any connection attempt
func (r *RecognizerConfig) Validate() error {
	switch {
	case strings.TrimSpace(r.AppID) == "":
		return &domain.ConfigError{Field: "recognizer.app_id", Reason: "cannot be empty"}
	case strings.TrimSpace(r.APIKey) == "":
		return &domain.ConfigError{Field: "recognizer.api_key", Reason: "cannot be empty"}
	case strings.TrimSpace(r.APISecret) == "":
		return &domain.ConfigError{Field: "recognizer.api_secret", Reason: "cannot be empty"}
	case r.Host == "":
		return &domain.ConfigError{Field: "recognizer.host", Reason: "cannot be empty"}
	case !strings.HasPrefix(r.Path, "/"):
		return &domain.ConfigError{Field: "recognizer.path", Reason: "must start with /"}
	case r.Scheme != "ws" && r.Scheme != "wss":
		return &domain.ConfigError{Field: "recognizer.scheme", Reason: "must be ws or wss"}
	}
	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	switch {
	case s.FrameSize <= 0 || s.FrameSize%audio.BytesPerSample != 0:
		return &domain.ConfigError{Field: "stream.frame_size", Reason: fmt.Sprintf("must be a positive even number, got %d", s.FrameSize)}
	case s.BufferedFrames < 1:
		return &domain.ConfigError{Field: "stream.buffered_frames", Reason: fmt.Sprintf("must be at least 1, got %d", s.BufferedFrames)}
	case s.TickInterval <= 0:
		return &domain.ConfigError{Field: "stream.tick_interval", Reason: "must be positive"}
	case s.CloseGrace < 0:
		return &domain.ConfigError{Field: "stream.close_grace", Reason: "cannot be negative"}
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "memory":
		return nil
	case "mongo":
		if s.MongoURI == "" {
			return &domain.ConfigError{Field: "storage.mongo_uri", Reason: "is required for the mongo driver"}
		}
		if s.Database == "" {
			return &domain.ConfigError{Field: "storage.database", Reason: "cannot be empty"}
		}
		return nil
	default:
		return &domain.ConfigError{Field: "storage.driver", Reason: fmt.Sprintf("unknown driver %q", s.Driver)}
	}
}

// Validate validates audio source configuration
func (a *AudioConfig) Validate() error {
	switch a.Source {
	case "microphone":
		if a.FramesPerBuffer <= 0 {
			return &domain.ConfigError{Field: "audio.frames_per_buffer", Reason: "must be positive"}
		}
	case "file":
		if a.File == "" {
			return &domain.ConfigError{Field: "audio.file", Reason: "is required for the file source"}
		}
	default:
		return &domain.ConfigError{Field: "audio.source", Reason: fmt.Sprintf("unknown source %q", a.Source)}
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", l.Level)}
	}
	switch l.Format {
	case "json", "console":
	default:
		return &domain.ConfigError{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q", l.Format)}
	}
	return nil
}

// RecognizerOptions maps the configuration onto controller options
func (c *Config) RecognizerOptions() recognizer.Options {
	options := recognizer.DefaultOptions()
	options.AppID = c.Recognizer.AppID
	options.Scheme = c.Recognizer.Scheme
	options.Business = c.Recognizer.Business
	options.FrameSize = c.Stream.FrameSize
	options.BufferedFrames = c.Stream.BufferedFrames
	options.TickInterval = c.Stream.TickInterval
	options.CloseGrace = c.Stream.CloseGrace
	options.DropSilentFrames = c.Stream.DropSilentFrames
	if c.Recognizer.HandshakeTimeout > 0 {
		options.ConnectTimeout = c.Recognizer.HandshakeTimeout
	}
	return options
}
