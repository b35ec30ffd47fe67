// Package config holds the recognized realtime options with defaults and
// validation, loadable from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mealgrid/realtime/connection"
	"github.com/mealgrid/realtime/transport/ws"
)

// Config is the root configuration for the realtime core.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Transport  TransportConfig  `yaml:"transport"`
	Channels   ChannelsConfig   `yaml:"channels"`

	// EnableLogging turns on structured logging from the core. Off by
	// default so the library is silent unless asked.
	EnableLogging bool `yaml:"enable_logging"`
}

// ConnectionConfig holds connection manager settings.
type ConnectionConfig struct {
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	BaseReconnectDelay   Duration `yaml:"base_reconnect_delay"`
	MaxReconnectDelay    Duration `yaml:"max_reconnect_delay"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval"`
	MessageQueueCapacity int      `yaml:"message_queue_capacity"`
	MaxSendRetries       int      `yaml:"max_send_retries"`
}

// TransportConfig holds websocket transport settings.
type TransportConfig struct {
	URL              string   `yaml:"url"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	MaxMessageSize   int64    `yaml:"max_message_size"`
}

// ChannelsConfig holds the synchronizer channel names.
type ChannelsConfig struct {
	Cart     string `yaml:"cart"`
	Chat     string `yaml:"chat"`
	Presence string `yaml:"presence"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ManagerConfig converts the connection section into the manager's config.
func (c *Config) ManagerConfig() connection.Config {
	return connection.Config{
		MaxReconnectAttempts: c.Connection.MaxReconnectAttempts,
		BaseReconnectDelay:   c.Connection.BaseReconnectDelay.Std(),
		MaxReconnectDelay:    c.Connection.MaxReconnectDelay.Std(),
		HeartbeatInterval:    c.Connection.HeartbeatInterval.Std(),
		MessageQueueCapacity: c.Connection.MessageQueueCapacity,
		MaxSendRetries:       c.Connection.MaxSendRetries,
	}
}

// TransportClientConfig converts the transport section into the websocket
// client's config.
func (c *Config) TransportClientConfig() ws.Config {
	return ws.Config{
		URL:              c.Transport.URL,
		HandshakeTimeout: c.Transport.HandshakeTimeout.Std(),
		WriteTimeout:     c.Transport.WriteTimeout.Std(),
		MaxMessageSize:   c.Transport.MaxMessageSize,
	}
}

// Logger returns the logger the core should use: the given base when logging
// is enabled, a discarding logger otherwise.
func (c *Config) Logger(base *slog.Logger) *slog.Logger {
	if !c.EnableLogging {
		return slog.New(slog.DiscardHandler)
	}
	if base == nil {
		return slog.Default()
	}
	return base
}
