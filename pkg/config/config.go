package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultDataDir     = "./data/tinynotes"
	DefaultMaxMemoryMB = 48
)

// HTTP timeouts and limits
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second
	RequestTimeout     = 10 * time.Second
	ShutdownTimeout    = 30 * time.Second
	MaxRequestBytes    = 64 << 10
)

// Metrics export
const (
	DefaultCollectorEndpoint = "localhost:4317"
	DefaultExportInterval    = 60 * time.Second
	ExportTimeout            = 10 * time.Second
	ShutdownFlushTimeout     = 5 * time.Second
)

// Background maintenance
const (
	MaintenanceInterval = 10 * time.Minute
	MaintenanceTimeout  = 1 * time.Minute
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Backend     string `env:"TINYNOTES_STORAGE" envDefault:"sqlite"`
	DataDir     string `env:"TINYNOTES_DATA_DIR" envDefault:"./data/tinynotes"`
	MaxMemoryMB int64  `env:"TINYNOTES_MAX_MEMORY_MB" envDefault:"48"`

	LogLevel  string `env:"TINYNOTES_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TINYNOTES_LOG_FORMAT" envDefault:"json"`

	Telemetry TelemetryConfig
}

// TelemetryConfig selects where counters are pushed.
type TelemetryConfig struct {
	Endpoint       string        `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	Insecure       bool          `env:"OTEL_INSECURE" envDefault:"true"`
	ExportInterval time.Duration `env:"TINYNOTES_EXPORT_INTERVAL" envDefault:"60s"`
	ServiceName    string        `env:"OTEL_SERVICE_NAME" envDefault:"tinynotes"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (want %s, %s or %s)",
			c.Backend, BackendSQLite, BackendBadger, BackendMemory)
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.Telemetry.Endpoint == "" {
		return errors.New("collector endpoint is required")
	}
	if c.Telemetry.ExportInterval <= 0 {
		return fmt.Errorf("export interval must be positive, got %v", c.Telemetry.ExportInterval)
	}
	return nil
}
