package config

import (
	"time"

	"github.com/mealgrid/realtime/syncer"
)

// Default values for optional configuration fields.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultBaseReconnectDelay   = 1 * time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMessageQueueCapacity = 100
	DefaultMaxSendRetries       = 3
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultMaxMessageSize       = 512 * 1024
)

func (c *Config) applyDefaults() {
	// Connection defaults
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.BaseReconnectDelay == 0 {
		c.Connection.BaseReconnectDelay = Duration(DefaultBaseReconnectDelay)
	}
	if c.Connection.MaxReconnectDelay == 0 {
		c.Connection.MaxReconnectDelay = Duration(DefaultMaxReconnectDelay)
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = Duration(DefaultHeartbeatInterval)
	}
	if c.Connection.MessageQueueCapacity == 0 {
		c.Connection.MessageQueueCapacity = DefaultMessageQueueCapacity
	}
	if c.Connection.MaxSendRetries == 0 {
		c.Connection.MaxSendRetries = DefaultMaxSendRetries
	}

	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if c.Transport.MaxMessageSize == 0 {
		c.Transport.MaxMessageSize = DefaultMaxMessageSize
	}

	// Channel defaults
	if c.Channels.Cart == "" {
		c.Channels.Cart = syncer.DefaultCartChannel
	}
	if c.Channels.Chat == "" {
		c.Channels.Chat = syncer.DefaultChatChannel
	}
	if c.Channels.Presence == "" {
		c.Channels.Presence = syncer.DefaultPresenceChannel
	}
}
