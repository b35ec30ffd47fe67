package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/mealgrid/realtime/scheduler"
	"github.com/mealgrid/realtime/transport"
)

// manualReconnectDelay is the fixed short delay used by Reconnect instead of
// the backoff schedule. Intended for user-triggered "retry now" actions only;
// automated callers invoking Reconnect in a loop bypass backoff entirely.
const manualReconnectDelay = 500 * time.Millisecond

// Manager owns one logical transport session and runs the connection state
// machine, reconnection policy, and heartbeat quality measurement.
//
// All transport and timer callbacks are funneled through a single mutex so
// state transitions and stat updates are atomic and strictly ordered.
// Listeners are invoked synchronously on that event path and must not block
// for unbounded time.
type Manager struct {
	cfg    Config
	tr     transport.Transport
	sched  scheduler.Scheduler
	logger *slog.Logger
	id     string

	outbox *Outbox
	policy *reconnectPolicy

	// now is swappable for deterministic latency tests.
	now func() time.Time

	// opMu serializes the logical event stream: connect/disconnect calls,
	// transport callbacks, and timer callbacks.
	opMu        sync.Mutex
	closed      bool
	dialing     bool
	expectClose bool

	reconnectTimer scheduler.Timer
	heartbeatTimer scheduler.Timer

	pingOutstanding bool
	pingSentAt      time.Time

	// mu guards the readable snapshot fields.
	mu        sync.RWMutex
	st        State
	qual      Quality
	stats     Stats
	latencies []time.Duration

	lmu              sync.Mutex
	stateListeners   []stateListener
	qualityListeners []qualityListener
	errorListeners   []errorListener
}

type stateListener struct {
	id string
	fn func(State)
}

type qualityListener struct {
	id string
	fn func(Quality)
}

type errorListener struct {
	id string
	fn func(error)
}

// NewManager creates a Manager on top of the given transport. A nil scheduler
// falls back to the wall clock; a nil logger falls back to slog.Default().
// The manager registers itself for the transport's open/close/error/pong
// callbacks.
func NewManager(cfg Config, tr transport.Transport, sched scheduler.Scheduler, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	if sched == nil {
		sched = scheduler.Wall()
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		tr:     tr,
		sched:  sched,
		id:     xid.New().String(),
		policy: newReconnectPolicy(cfg.MaxReconnectAttempts, cfg.BaseReconnectDelay, cfg.MaxReconnectDelay),
		now:    time.Now,
		st:     StateDisconnected,
		qual:   QualityDisconnected,
	}
	m.logger = logger.With("conn_id", m.id)
	m.outbox = newOutbox(m, cfg.MessageQueueCapacity, cfg.MaxSendRetries, m.logger)

	tr.OnOpen(m.handleOpen)
	tr.OnClose(m.handleClose)
	tr.OnError(m.handleError)
	tr.OnPong(m.handlePong)

	return m
}

// ID returns the manager's unique instance id, used in log attribution.
func (m *Manager) ID() string {
	return m.id
}

// Outbox returns the outbound message queue bound to this manager.
func (m *Manager) Outbox() *Outbox {
	return m.outbox
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

// Quality returns the current connection quality.
func (m *Manager) Quality() Quality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qual
}

// Stats returns a snapshot of connection statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Connect requests a session open. Idempotent: a manager already connecting
// or connected ignores the call. Completion is signaled via OnStateChange.
func (m *Manager) Connect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed {
		return
	}
	switch m.State() {
	case StateConnecting, StateConnected:
		return
	}

	m.transitionLocked(StateConnecting)
	if err := m.tr.Connect(); err != nil {
		m.notifyError(err)
		m.dropLocked(err)
	}
}

// Disconnect cancels pending timers, stops the heartbeat, requests transport
// close, and moves to disconnected. Terminal: a fresh manager is required to
// connect again.
func (m *Manager) Disconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	m.stopTimersLocked()
	wasConnected := m.State() == StateConnected

	if err := m.tr.Disconnect(); err != nil {
		m.logger.Debug("transport close request failed", "error", err)
	}

	m.mu.Lock()
	if wasConnected {
		m.stats.DisconnectedAt = m.now()
	}
	m.mu.Unlock()

	m.transitionLocked(StateDisconnected)
	m.setQualityLocked(QualityDisconnected)
	m.logger.Info("connection manager disconnected")
}

// Reconnect forces a manual reconnection cycle: the backoff schedule resets
// to base, a connected session is dropped, and a new dial is issued after a
// short fixed delay. Used for user-triggered "retry now" actions.
func (m *Manager) Reconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed {
		return
	}

	m.stopTimersLocked()
	m.policy.reset()
	m.pingOutstanding = false

	if m.State() == StateConnected {
		m.expectClose = true
		if err := m.tr.Disconnect(); err != nil {
			m.logger.Debug("transport close request failed", "error", err)
		}
		m.mu.Lock()
		m.stats.DisconnectedAt = m.now()
		m.mu.Unlock()
	}

	m.transitionLocked(StateConnecting)
	m.setQualityLocked(QualityDisconnected)

	m.reconnectTimer = m.sched.AfterFunc(manualReconnectDelay, m.manualDial)
	m.logger.Info("manual reconnect requested", "delay", manualReconnectDelay)
}

// OnStateChange registers a listener for state transitions and returns its
// unsubscribe function. Listeners run synchronously in registration order.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	id := xid.New().String()
	m.stateListeners = append(m.stateListeners, stateListener{id: id, fn: fn})
	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		for i, l := range m.stateListeners {
			if l.id == id {
				m.stateListeners = append(m.stateListeners[:i], m.stateListeners[i+1:]...)
				return
			}
		}
	}
}

// OnQualityChange registers a listener invoked only when the derived quality
// actually changes, and returns its unsubscribe function.
func (m *Manager) OnQualityChange(fn func(Quality)) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	id := xid.New().String()
	m.qualityListeners = append(m.qualityListeners, qualityListener{id: id, fn: fn})
	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		for i, l := range m.qualityListeners {
			if l.id == id {
				m.qualityListeners = append(m.qualityListeners[:i], m.qualityListeners[i+1:]...)
				return
			}
		}
	}
}

// OnError registers a listener for transport and policy errors and returns
// its unsubscribe function. Errors are observability events; recovery is
// handled internally.
func (m *Manager) OnError(fn func(error)) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	id := xid.New().String()
	m.errorListeners = append(m.errorListeners, errorListener{id: id, fn: fn})
	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		for i, l := range m.errorListeners {
			if l.id == id {
				m.errorListeners = append(m.errorListeners[:i], m.errorListeners[i+1:]...)
				return
			}
		}
	}
}

// handleOpen processes a transport session open.
func (m *Manager) handleOpen() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed {
		// Session opened after teardown; close it again.
		m.tr.Disconnect()
		return
	}
	if m.State() == StateConnected {
		return
	}

	m.dialing = false
	m.expectClose = false
	m.stopTimersLocked()
	m.policy.reset()
	m.pingOutstanding = false

	m.mu.Lock()
	m.stats.ConnectedAt = m.now()
	m.stats.ReconnectAttempts = 0
	m.stats.AverageLatency = 0
	m.latencies = m.latencies[:0]
	m.mu.Unlock()

	// State listeners run before the queue flush so the channel registry
	// re-subscribes every known channel ahead of any replayed message.
	m.transitionLocked(StateConnected)
	// No latency samples yet; assume the best until the first probe
	// round-trips and the real average takes over.
	m.setQualityLocked(QualityExcellent)
	m.scheduleHeartbeatLocked()
	m.outbox.flush()

	m.logger.Info("connected")
}

// handleClose processes a transport session close.
func (m *Manager) handleClose(err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed {
		// The transport confirming the close we issued in Disconnect is
		// not an error.
		return
	}
	if m.expectClose {
		// Close we requested ourselves during a manual reconnect.
		m.expectClose = false
		return
	}
	if err == nil {
		err = ErrTransportClosed
	}
	m.notifyError(err)
	m.dropLocked(err)
}

// handleError processes a transport-level error. Errors and closes funnel
// into the same recovery path; the distinction only reaches OnError.
func (m *Manager) handleError(err error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed {
		return
	}
	m.notifyError(err)
	m.dropLocked(err)
}

// handlePong records the round trip of the outstanding heartbeat probe.
func (m *Manager) handlePong() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed || !m.pingOutstanding || m.State() != StateConnected {
		return
	}
	m.pingOutstanding = false

	rtt := m.now().Sub(m.pingSentAt)

	m.mu.Lock()
	m.latencies = append(m.latencies, rtt)
	if len(m.latencies) > latencyWindow {
		m.latencies = m.latencies[len(m.latencies)-latencyWindow:]
	}
	var total time.Duration
	for _, d := range m.latencies {
		total += d
	}
	avg := total / time.Duration(len(m.latencies))
	m.stats.AverageLatency = avg
	m.stats.LastHeartbeatAt = m.now()
	m.mu.Unlock()

	m.setQualityLocked(qualityForLatency(avg))
	m.logger.Debug("heartbeat round trip", "rtt", rtt, "avg", avg)
}

// dropLocked funnels every drop event (close or error) into the reconnection
// algorithm. Requires opMu.
func (m *Manager) dropLocked(cause error) {
	if m.closed {
		return
	}

	switch m.State() {
	case StateDisconnected, StateError:
		return
	case StateReconnecting:
		if !m.dialing {
			// Stray event while waiting on the reconnect timer.
			return
		}
	}
	m.dialing = false

	m.stopHeartbeatLocked()
	m.pingOutstanding = false

	if m.State() == StateConnected {
		m.mu.Lock()
		m.stats.DisconnectedAt = m.now()
		m.mu.Unlock()
	}

	m.logger.Warn("connection dropped", "error", cause)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked schedules the next backoff attempt, or transitions
// to the terminal error state when the budget is exhausted. Requires opMu.
func (m *Manager) scheduleReconnectLocked() {
	if m.policy.exhausted() {
		m.transitionLocked(StateError)
		m.setQualityLocked(QualityDisconnected)
		m.notifyError(ErrReconnectExhausted)
		m.logger.Error("reconnect attempts exhausted", "attempts", m.policy.attempt)
		return
	}

	delay := m.policy.next()

	m.mu.Lock()
	m.stats.ReconnectAttempts = m.policy.attempt
	m.mu.Unlock()

	m.transitionLocked(StateReconnecting)
	m.setQualityLocked(QualityDisconnected)

	m.reconnectTimer = m.sched.AfterFunc(delay, m.attemptReconnect)
	m.logger.Info("reconnect scheduled",
		"attempt", m.policy.attempt,
		"delay", delay,
	)
}

// attemptReconnect fires when the backoff timer elapses.
func (m *Manager) attemptReconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed || m.State() != StateReconnecting {
		return
	}

	m.dialing = true
	m.logger.Info("attempting reconnection", "attempt", m.policy.attempt)
	if err := m.tr.Connect(); err != nil {
		m.notifyError(err)
		m.dropLocked(err)
	}
}

// manualDial fires after the fixed manual reconnect delay.
func (m *Manager) manualDial() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed || m.State() != StateConnecting {
		return
	}

	if err := m.tr.Connect(); err != nil {
		m.notifyError(err)
		m.dropLocked(err)
	}
}

// scheduleHeartbeatLocked arms the next heartbeat probe. Requires opMu.
func (m *Manager) scheduleHeartbeatLocked() {
	m.heartbeatTimer = m.sched.AfterFunc(m.cfg.HeartbeatInterval, m.heartbeatTick)
}

// heartbeatTick emits one probe per interval while connected. A probe that
// was never answered counts as a missed measurement and degrades quality; it
// does not force a disconnect on its own.
func (m *Manager) heartbeatTick() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.closed || m.State() != StateConnected {
		return
	}

	if m.pingOutstanding {
		m.logger.Warn("heartbeat probe unanswered")
		m.setQualityLocked(QualityPoor)
	}

	m.pingSentAt = m.now()
	m.pingOutstanding = true
	if err := m.tr.Ping(); err != nil {
		m.logger.Debug("heartbeat send failed", "error", err)
	}

	m.scheduleHeartbeatLocked()
}

// stopHeartbeatLocked stops the heartbeat timer. Requires opMu.
func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
}

// stopTimersLocked cancels the pending reconnect and heartbeat timers so
// nothing fires against a torn-down or restarted session. Requires opMu.
func (m *Manager) stopTimersLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()
}

// transitionLocked moves to a new state and dispatches state listeners when
// the value actually changes. Requires opMu.
func (m *Manager) transitionLocked(s State) {
	m.mu.Lock()
	if m.st == s {
		m.mu.Unlock()
		return
	}
	old := m.st
	m.st = s
	m.mu.Unlock()

	m.logger.Debug("state transition", "from", old, "to", s)

	m.lmu.Lock()
	listeners := make([]stateListener, len(m.stateListeners))
	copy(listeners, m.stateListeners)
	m.lmu.Unlock()

	for _, l := range listeners {
		l.fn(s)
	}
}

// setQualityLocked updates quality and dispatches quality listeners only on
// an actual change. Requires opMu.
func (m *Manager) setQualityLocked(q Quality) {
	m.mu.Lock()
	if m.qual == q {
		m.mu.Unlock()
		return
	}
	m.qual = q
	m.mu.Unlock()

	m.lmu.Lock()
	listeners := make([]qualityListener, len(m.qualityListeners))
	copy(listeners, m.qualityListeners)
	m.lmu.Unlock()

	for _, l := range listeners {
		l.fn(q)
	}
}

// notifyError dispatches error listeners.
func (m *Manager) notifyError(err error) {
	m.lmu.Lock()
	listeners := make([]errorListener, len(m.errorListeners))
	copy(listeners, m.errorListeners)
	m.lmu.Unlock()

	for _, l := range listeners {
		l.fn(err)
	}
}

// sendNow pushes one message straight to the transport. Only the Outbox
// calls this; everything outbound goes through the queue.
func (m *Manager) sendNow(channel, event string, payload []byte) error {
	if m.State() != StateConnected {
		return ErrNotConnected
	}
	if err := m.tr.Send(channel, event, payload); err != nil {
		return err
	}

	m.mu.Lock()
	m.stats.TotalMessagesSent++
	m.mu.Unlock()
	return nil
}

// recordFailedMessage counts a message dropped after retry exhaustion.
func (m *Manager) recordFailedMessage() {
	m.mu.Lock()
	m.stats.FailedMessages++
	m.mu.Unlock()
}
