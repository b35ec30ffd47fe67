// Package metrics exposes Prometheus metrics for a connection manager.
//
// Key metrics:
//   - Connection state and quality as enum gauges
//   - Reconnect attempts and outbound queue depth
//   - Messages sent and dropped after retry exhaustion
//   - Average heartbeat round-trip latency
//
// The collector reads manager snapshots at scrape time; the core packages
// never depend on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealgrid/realtime/connection"
)

// Collector implements prometheus.Collector over a connection manager.
type Collector struct {
	mgr *connection.Manager

	state             *prometheus.Desc
	quality           *prometheus.Desc
	reconnectAttempts *prometheus.Desc
	messagesSent      *prometheus.Desc
	failedMessages    *prometheus.Desc
	queueDepth        *prometheus.Desc
	averageLatency    *prometheus.Desc
}

// NewCollector creates a collector for the given manager.
func NewCollector(mgr *connection.Manager) *Collector {
	labels := prometheus.Labels{"conn_id": mgr.ID()}

	return &Collector{
		mgr: mgr,
		state: prometheus.NewDesc(
			"realtime_connection_state",
			"Current connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=error).",
			nil, labels,
		),
		quality: prometheus.NewDesc(
			"realtime_connection_quality",
			"Current connection quality (0=disconnected, 1=poor, 2=good, 3=excellent).",
			nil, labels,
		),
		reconnectAttempts: prometheus.NewDesc(
			"realtime_reconnect_attempts",
			"Reconnect attempts since the last successful connection.",
			nil, labels,
		),
		messagesSent: prometheus.NewDesc(
			"realtime_messages_sent_total",
			"Messages successfully handed to the transport.",
			nil, labels,
		),
		failedMessages: prometheus.NewDesc(
			"realtime_messages_failed_total",
			"Messages dropped after exhausting their retry budget.",
			nil, labels,
		),
		queueDepth: prometheus.NewDesc(
			"realtime_outbox_depth",
			"Messages currently buffered for replay.",
			nil, labels,
		),
		averageLatency: prometheus.NewDesc(
			"realtime_heartbeat_latency_seconds",
			"Rolling average heartbeat round-trip latency.",
			nil, labels,
		),
	}
}

// Register registers the collector with the given registerer.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.quality
	ch <- c.reconnectAttempts
	ch <- c.messagesSent
	ch <- c.failedMessages
	ch <- c.queueDepth
	ch <- c.averageLatency
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.mgr.Stats()

	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(c.mgr.State()))
	ch <- prometheus.MustNewConstMetric(c.quality, prometheus.GaugeValue, float64(c.mgr.Quality()))
	ch <- prometheus.MustNewConstMetric(c.reconnectAttempts, prometheus.GaugeValue, float64(stats.ReconnectAttempts))
	ch <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(stats.TotalMessagesSent))
	ch <- prometheus.MustNewConstMetric(c.failedMessages, prometheus.CounterValue, float64(stats.FailedMessages))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.mgr.Outbox().Len()))
	ch <- prometheus.MustNewConstMetric(c.averageLatency, prometheus.GaugeValue, stats.AverageLatency.Seconds())
}
