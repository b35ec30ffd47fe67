package channel

import (
	"log/slog"
	"sync"

	"github.com/mealgrid/realtime/connection"
	"github.com/mealgrid/realtime/transport"
)

// Registry owns the channel set for one connection manager session.
type Registry struct {
	mgr    *connection.Manager
	tr     transport.Transport
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]*Channel
	order    []string

	cancelState func()
}

// NewRegistry creates a registry bound to the given manager and transport.
// It registers a state listener so every known channel is re-subscribed, in
// creation order, on each transition into connected.
func NewRegistry(mgr *connection.Manager, tr transport.Transport, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		mgr:      mgr,
		tr:       tr,
		logger:   logger.With("component", "channel_registry"),
		channels: make(map[string]*Channel),
	}
	r.cancelState = mgr.OnStateChange(r.handleStateChange)
	return r
}

// Subscribe returns the existing channel for name, or registers a new one
// and requests the transport join when a session is open. Idempotent per
// name. A join that fails now is repaired on the next reconnection.
func (r *Registry) Subscribe(name string) *Channel {
	r.mu.Lock()
	if ch, ok := r.channels[name]; ok {
		r.mu.Unlock()
		return ch
	}

	ch := newChannel(name, r)
	r.channels[name] = ch
	r.order = append(r.order, name)
	r.mu.Unlock()

	if r.mgr.State() == connection.StateConnected {
		r.join(ch)
	}

	r.logger.Debug("channel registered", "channel", name)
	return ch
}

// Unsubscribe removes and tears down one channel. Safe to call while
// disconnected; the registration is simply forgotten.
func (r *Registry) Unsubscribe(name string) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	if ok {
		delete(r.channels, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		ch.detach()
		r.logger.Debug("channel unregistered", "channel", name)
	}
}

// UnsubscribeAll tears down every channel. Used on teardown of the owning
// context.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, name := range r.order {
		channels = append(channels, r.channels[name])
	}
	r.channels = make(map[string]*Channel)
	r.order = nil
	r.mu.Unlock()

	for _, ch := range channels {
		ch.detach()
	}
}

// Channels returns the registered channel names in creation order.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Close unregisters the state listener and tears down every channel.
func (r *Registry) Close() {
	if r.cancelState != nil {
		r.cancelState()
		r.cancelState = nil
	}
	r.UnsubscribeAll()
}

// handleStateChange re-subscribes the full channel set on every transition
// into connected, before the manager replays the outbound queue.
func (r *Registry) handleStateChange(s connection.State) {
	if s != connection.StateConnected {
		return
	}

	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.order))
	for _, name := range r.order {
		channels = append(channels, r.channels[name])
	}
	r.mu.Unlock()

	for _, ch := range channels {
		r.join(ch)
	}
	if len(channels) > 0 {
		r.logger.Info("channels re-subscribed", "count", len(channels))
	}
}

// join requests the transport subscription for one channel.
func (r *Registry) join(ch *Channel) {
	sub, err := r.tr.Subscribe(ch.name)
	if err != nil {
		r.logger.Warn("channel join failed", "channel", ch.name, "error", err)
		return
	}
	ch.attach(sub)
}
