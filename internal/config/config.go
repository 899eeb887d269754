package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`

	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReplayPageSize  int           `mapstructure:"replay_page_size" yaml:"replay_page_size" validate:"gt=0"`
	OriginPatterns  []string      `mapstructure:"origin_patterns" yaml:"origin_patterns"`

	History HistoryConfig `mapstructure:"history" yaml:"history"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
}

// HistoryConfig selects the history backend.
type HistoryConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite badger"`
	Path   string `mapstructure:"path" yaml:"path" validate:"required"`
}

// NATSConfig enables mirroring of posted messages. Empty URL disables it.
type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Subject string `mapstructure:"subject" yaml:"subject" validate:"required_with=URL"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		MaxMessageBytes:   64 << 10,
		SendBuffer:        64,
		WriteTimeout:      10 * time.Second,
		ReplayPageSize:    256,
		History: HistoryConfig{
			Driver: "sqlite",
			Path:   "wirechat.db",
		},
		NATS: NATSConfig{
			Subject: "chat",
		},
	}
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.History.Driver != "" {
		c.History.Driver = other.History.Driver
	}
	if other.History.Path != "" {
		c.History.Path = other.History.Path
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
}
