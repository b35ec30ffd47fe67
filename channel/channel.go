// Package channel multiplexes named logical channels over a single
// connection manager session. The registry tracks which channels are
// subscribed and re-subscribes them transparently, in creation order, after
// every reconnection.
package channel

import (
	"sync"

	"github.com/rs/xid"

	"github.com/mealgrid/realtime/transport"
)

// Handler receives events delivered on a channel.
type Handler func(event string, payload []byte)

type handlerEntry struct {
	id string
	fn Handler
}

// Channel is a named logical topic. Its lifetime spans from the first
// Subscribe call to an explicit Unsubscribe or registry teardown.
type Channel struct {
	name string
	reg  *Registry

	mu       sync.RWMutex
	sub      transport.Subscription
	handlers map[string][]handlerEntry
	all      []handlerEntry
}

func newChannel(name string, reg *Registry) *Channel {
	return &Channel{
		name:     name,
		reg:      reg,
		handlers: make(map[string][]handlerEntry),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// On registers a handler for one event name and returns its unbind function.
func (c *Channel) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := xid.New().String()
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: h})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[event]
		for i, e := range entries {
			if e.id == id {
				c.handlers[event] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnAll registers a handler for every event on the channel and returns its
// unbind function.
func (c *Channel) OnAll(h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := xid.New().String()
	c.all = append(c.all, handlerEntry{id: id, fn: h})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.all {
			if e.id == id {
				c.all = append(c.all[:i], c.all[i+1:]...)
				return
			}
		}
	}
}

// Publish sends a message on this channel through the outbound queue,
// inheriting its ordering and retry guarantees. While disconnected the
// message is buffered, not rejected.
func (c *Channel) Publish(event string, payload []byte) {
	c.reg.mgr.Outbox().Enqueue(c.name, event, payload)
}

// attach binds a live transport subscription to this channel.
func (c *Channel) attach(sub transport.Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	sub.OnEvent(c.dispatch)
}

// detach tears down the transport subscription, if any.
func (c *Channel) detach() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			c.reg.logger.Debug("unsubscribe failed", "channel", c.name, "error", err)
		}
	}
}

// dispatch fans one delivered event out to the registered handlers.
func (c *Channel) dispatch(event string, payload []byte) {
	c.mu.RLock()
	entries := make([]handlerEntry, 0, len(c.handlers[event])+len(c.all))
	entries = append(entries, c.handlers[event]...)
	entries = append(entries, c.all...)
	c.mu.RUnlock()

	for _, e := range entries {
		e.fn(event, payload)
	}
}
