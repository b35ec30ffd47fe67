package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrManagerClosed      = errors.New("manager closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrTransportClosed    = errors.New("transport closed the session")
)

// State is the connection manager's current lifecycle state. Exactly one
// value is current at any time; transitions are the only way to change it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Quality is a coarse classification of link health derived from measured
// heartbeat latency. It is always QualityDisconnected unless the manager is
// in StateConnected.
type Quality int

const (
	QualityDisconnected Quality = iota
	QualityPoor
	QualityGood
	QualityExcellent
)

func (q Quality) String() string {
	switch q {
	case QualityDisconnected:
		return "disconnected"
	case QualityPoor:
		return "poor"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	}
	return "unknown"
}

// Latency thresholds for quality classification.
const (
	latencyExcellent = 100 * time.Millisecond
	latencyGood      = 300 * time.Millisecond
)

// latencyWindow is the number of heartbeat samples in the rolling average.
const latencyWindow = 10

// qualityForLatency maps an average round-trip latency to a quality class.
func qualityForLatency(avg time.Duration) Quality {
	switch {
	case avg < latencyExcellent:
		return QualityExcellent
	case avg < latencyGood:
		return QualityGood
	default:
		return QualityPoor
	}
}

// Stats is a read-only snapshot of connection statistics. Only the Manager
// mutates the underlying counters.
type Stats struct {
	ConnectedAt       time.Time
	DisconnectedAt    time.Time
	ReconnectAttempts int
	TotalMessagesSent int64
	FailedMessages    int64
	AverageLatency    time.Duration
	LastHeartbeatAt   time.Time
}

// Config holds the Manager's recognized options. Zero values fall back to
// the defaults below.
type Config struct {
	MaxReconnectAttempts int
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration
	HeartbeatInterval    time.Duration
	MessageQueueCapacity int
	MaxSendRetries       int
}

// Default values for optional configuration fields.
const (
	DefaultMaxReconnectAttempts = 10
	DefaultBaseReconnectDelay   = 1 * time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMessageQueueCapacity = 100
	DefaultMaxSendRetries       = 3
)

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		BaseReconnectDelay:   DefaultBaseReconnectDelay,
		MaxReconnectDelay:    DefaultMaxReconnectDelay,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		MessageQueueCapacity: DefaultMessageQueueCapacity,
		MaxSendRetries:       DefaultMaxSendRetries,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.BaseReconnectDelay == 0 {
		c.BaseReconnectDelay = DefaultBaseReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MessageQueueCapacity == 0 {
		c.MessageQueueCapacity = DefaultMessageQueueCapacity
	}
	if c.MaxSendRetries == 0 {
		c.MaxSendRetries = DefaultMaxSendRetries
	}
}
