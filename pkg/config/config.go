// Package config holds library configuration and logger construction.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds tunables for the peripheral core.
type Config struct {
	LogLevel       string   `yaml:"log_level" default:"info"`
	ResolveTimeout Duration `yaml:"resolve_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// EventQueueSize bounds each event registration's dispatch buffer.
	EventQueueSize int `yaml:"event_queue_size" default:"16"`
}

// DefaultConfig returns configuration with defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.ResolveTimeout = Duration(30 * time.Second)
	cfg.ConnectTimeout = Duration(30 * time.Second)
	return cfg
}

// LoadFile reads a YAML configuration file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level parses the configured log level.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger creates a configured logger instance. An invalid level falls
// back to Info.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
