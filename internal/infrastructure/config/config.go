package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Detector  DetectorConfig
	EventLog  EventLogConfig
	Defaults  ResourceDefaults
	Scenarios ScenarioConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8080"`
	Host        string   `envconfig:"HOST" default:"0.0.0.0"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DetectorConfig holds deadlock detector configuration.
type DetectorConfig struct {
	Enabled  bool          `envconfig:"DETECTOR_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"DETECTOR_INTERVAL" default:"500ms"`
	History  int           `envconfig:"DETECTOR_HISTORY" default:"100"`
}

// EventLogConfig holds event log configuration.
type EventLogConfig struct {
	Retention int `envconfig:"EVENTLOG_RETENTION" default:"10000"` // 0 keeps everything
}

// ResourceDefaults fill in resource configuration left unset at creation.
type ResourceDefaults struct {
	PipeCapacity  int           `envconfig:"PIPE_CAPACITY" default:"65536"`
	QueueCapacity int           `envconfig:"QUEUE_CAPACITY" default:"100"`
	SharedMemSize int           `envconfig:"SHM_SIZE" default:"1024"`
	OpTimeout     time.Duration `envconfig:"OP_TIMEOUT" default:"0s"`
}

// ScenarioConfig holds scenario runner configuration.
type ScenarioConfig struct {
	Dir    string        `envconfig:"SCENARIO_DIR" default:"scenarios"`
	Settle time.Duration `envconfig:"SCENARIO_SETTLE" default:"200ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `envconfig:"LOG_LEVEL" default:"info"`
	Development bool     `envconfig:"LOG_DEV" default:"false"`
	Output      []string `envconfig:"LOG_OUTPUT" default:"stdout"` // comma-separated paths or stdout/stderr
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.Detector.Interval <= 0:
		return fmt.Errorf("invalid config: DETECTOR_INTERVAL must be positive, got %s", c.Detector.Interval)
	case c.Detector.History <= 0:
		return fmt.Errorf("invalid config: DETECTOR_HISTORY must be positive, got %d", c.Detector.History)
	case c.EventLog.Retention < 0:
		return fmt.Errorf("invalid config: EVENTLOG_RETENTION must not be negative, got %d", c.EventLog.Retention)
	case c.Defaults.PipeCapacity <= 0, c.Defaults.QueueCapacity <= 0, c.Defaults.SharedMemSize <= 0:
		return fmt.Errorf("invalid config: resource defaults must be positive")
	case c.Defaults.OpTimeout < 0:
		return fmt.Errorf("invalid config: OP_TIMEOUT must not be negative, got %s", c.Defaults.OpTimeout)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Detector: DetectorConfig{
			Enabled:  true,
			Interval: 500 * time.Millisecond,
			History:  100,
		},
		EventLog: EventLogConfig{
			Retention: 10000,
		},
		Defaults: ResourceDefaults{
			PipeCapacity:  65536,
			QueueCapacity: 100,
			SharedMemSize: 1024,
		},
		Scenarios: ScenarioConfig{
			Dir:    "scenarios",
			Settle: 200 * time.Millisecond,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      []string{"stdout"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	URL          string        `envconfig:"IPCDBG_URL" default:"http://localhost:8080"`
	Timeout      time.Duration `envconfig:"IPCDBG_TIMEOUT" default:"30s"`
	RetryMax     int           `envconfig:"IPCDBG_RETRY_MAX" default:"3"`
	RetryWaitMin time.Duration `envconfig:"IPCDBG_RETRY_WAIT_MIN" default:"100ms"`
	RetryWaitMax time.Duration `envconfig:"IPCDBG_RETRY_WAIT_MAX" default:"2s"`
	RateLimit    float64       `envconfig:"IPCDBG_RATE_LIMIT" default:"0"` // requests per second, 0 = unlimited
}

// LoadClient loads client configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}
	if cfg.RetryMax < 0 || cfg.RateLimit < 0 || cfg.Timeout < 0 {
		return nil, fmt.Errorf("invalid client config: retries, rate limit and timeout must not be negative")
	}
	return &cfg, nil
}
