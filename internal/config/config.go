package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"gopkg.in/yaml.v3"
)

const (
	BackendHeadless = "headless"
	BackendX11      = "x11"
)

// Config is the effective surfacebridge configuration shared by the host
// daemon and client tools.
type Config struct {
	Namespace   string        `yaml:"namespace"`
	Socket      string        `yaml:"socket"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Logging     LoggingConfig `yaml:"logging"`
	Host        HostConfig    `yaml:"host"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, console or json
}

type HostConfig struct {
	Backend           string        `yaml:"backend"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	DefaultWidth      int           `yaml:"default_width"`
	DefaultHeight     int           `yaml:"default_height"`
}

func DefaultConfig() *Config {
	return &Config{
		Namespace:   protocol.DefaultNamespace,
		CallTimeout: 5 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Host: HostConfig{
			Backend:           BackendHeadless,
			ReconcileInterval: 10 * time.Second,
			DefaultWidth:      640,
			DefaultHeight:     480,
		},
	}
}

// Validate checks the effective config. Errors are *ValidationError carrying
// the YAML path of the offending key.
func (c *Config) Validate() error {
	if err := protocol.ValidateNamespace(c.Namespace); err != nil {
		return &ValidationError{Path: "namespace", Err: err}
	}
	if c.CallTimeout < 0 {
		return &ValidationError{Path: "call_timeout", Err: fmt.Errorf("must be >= 0, got %s", c.CallTimeout)}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("must be one of debug, info, warn, error; got %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return &ValidationError{Path: "logging.format", Err: fmt.Errorf("must be one of auto, console, json; got %q", c.Logging.Format)}
	}
	switch c.Host.Backend {
	case BackendHeadless, BackendX11:
	default:
		return &ValidationError{Path: "host.backend", Err: fmt.Errorf("must be %q or %q, got %q", BackendHeadless, BackendX11, c.Host.Backend)}
	}
	if c.Host.ReconcileInterval < 0 {
		return &ValidationError{Path: "host.reconcile_interval", Err: fmt.Errorf("must be >= 0, got %s", c.Host.ReconcileInterval)}
	}
	if c.Host.DefaultWidth <= 0 {
		return &ValidationError{Path: "host.default_width", Err: errors.New("must be > 0")}
	}
	if c.Host.DefaultHeight <= 0 {
		return &ValidationError{Path: "host.default_height", Err: errors.New("must be > 0")}
	}
	return nil
}

// Save writes the config to the default location.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
