package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Transport.URL == "" {
		return errors.New("transport.url is required")
	}
	if !strings.HasPrefix(c.Transport.URL, "ws://") && !strings.HasPrefix(c.Transport.URL, "wss://") {
		return fmt.Errorf("transport.url must be a ws:// or wss:// URL, got %q", c.Transport.URL)
	}

	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.BaseReconnectDelay <= 0 {
		return errors.New("connection.base_reconnect_delay must be > 0")
	}
	if c.Connection.MaxReconnectDelay < c.Connection.BaseReconnectDelay {
		return errors.New("connection.max_reconnect_delay must be >= base_reconnect_delay")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if c.Connection.MessageQueueCapacity < 1 {
		return errors.New("connection.message_queue_capacity must be >= 1")
	}
	if c.Connection.MaxSendRetries < 0 {
		return errors.New("connection.max_send_retries must be >= 0")
	}

	return nil
}
