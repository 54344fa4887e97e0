package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all host configuration. It is built once at startup and
// treated as immutable afterwards.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Sandbox   SandboxConfig   `yaml:"sandbox" toml:"sandbox"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// EngineConfig selects the backend engine and the page hosted in each window.
type EngineConfig struct {
	Type     string `envconfig:"ENGINE" default:"goja" yaml:"type" toml:"type"`
	Sand     string `envconfig:"SAND" default:"worker" yaml:"sand" toml:"sand"`
	PagesDir string `envconfig:"PAGES_DIR" yaml:"pages_dir" toml:"pages_dir"`
}

// SandboxConfig holds script runtime limits.
type SandboxConfig struct {
	Timeout       time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"0s" yaml:"timeout" toml:"timeout"`
	MaxCallStack  int           `envconfig:"SANDBOX_CALL_STACK" default:"1024" yaml:"max_call_stack" toml:"max_call_stack"`
	EnableConsole bool          `envconfig:"SANDBOX_CONSOLE" default:"true" yaml:"enable_console" toml:"enable_console"`
	PoolSize      int           `envconfig:"SANDBOX_POOL" default:"4" yaml:"pool_size" toml:"pool_size"`
}

// TransportConfig holds controller transport settings.
type TransportConfig struct {
	Stdio       bool   `envconfig:"STDIO" default:"true" yaml:"stdio" toml:"stdio"`
	HTTPEnabled bool   `envconfig:"HTTP_ENABLED" default:"false" yaml:"http_enabled" toml:"http_enabled"`
	Host        string `envconfig:"HOST" default:"127.0.0.1" yaml:"host" toml:"host"`
	Port        string `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level         string        `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development   bool          `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
	File          string        `envconfig:"LOG_FILE" yaml:"file" toml:"file"`
	FlushInterval time.Duration `envconfig:"LOG_FLUSH_INTERVAL" default:"30s" yaml:"flush_interval" toml:"flush_interval"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Addr returns the HTTP listen address.
func (t TransportConfig) Addr() string {
	return t.Host + ":" + t.Port
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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

// LoadFile reads a YAML or TOML file over the defaults. The format is chosen
// by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Type: "goja",
			Sand: "worker",
		},
		Sandbox: SandboxConfig{
			MaxCallStack:  1024,
			EnableConsole: true,
			PoolSize:      4,
		},
		Transport: TransportConfig{
			Stdio: true,
			Host:  "127.0.0.1",
			Port:  "8000",
		},
		Logging: LogConfig{
			Level:         "info",
			FlushInterval: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
