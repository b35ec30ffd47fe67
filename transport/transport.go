package transport

import "errors"

// Errors
var (
	ErrNotConnected  = errors.New("transport: not connected")
	ErrAlreadyClosed = errors.New("transport: already closed")
)

// EventHandler receives events delivered on a subscription.
type EventHandler func(event string, payload []byte)

// Subscription is a live handle to one named channel on the provider.
type Subscription interface {
	// Channel returns the channel name this subscription is bound to.
	Channel() string

	// OnEvent registers the handler invoked for every event delivered on
	// this channel. Registering again replaces the previous handler.
	OnEvent(h EventHandler)

	// Unsubscribe tears down the subscription on the provider side.
	Unsubscribe() error
}

// Transport is the opaque session the connection manager sits on top of.
//
// Connect and Disconnect only request the action; completion is signaled
// asynchronously through the OnOpen/OnClose callbacks. Implementations must
// deliver callbacks one at a time, never concurrently.
type Transport interface {
	// Connect requests a session open. The open is confirmed via OnOpen.
	Connect() error

	// Disconnect requests a session close. The transport must remain
	// reusable: a later Connect re-dials.
	Disconnect() error

	// Send publishes a single message on a channel. It fails immediately
	// when no session is open.
	Send(channel, event string, payload []byte) error

	// Subscribe joins a named channel and returns a handle for event
	// delivery. Subscribing to the same name again after a reconnect
	// re-issues the join.
	Subscribe(channel string) (Subscription, error)

	// Ping sends a liveness probe. The answering pong arrives via OnPong.
	Ping() error

	// OnOpen registers the callback invoked when a session opens.
	OnOpen(fn func())

	// OnClose registers the callback invoked when the session closes,
	// with the error that ended it (nil for a clean close).
	OnClose(fn func(err error))

	// OnError registers the callback invoked for transport-level errors.
	OnError(fn func(err error))

	// OnPong registers the callback invoked when a ping is answered.
	OnPong(fn func())
}
