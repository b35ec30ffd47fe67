// Package ws implements the realtime transport over a websocket connection.
//
// Frames are a small JSON envelope (subscribe/unsubscribe/publish/event);
// liveness probes use websocket control frames. Connect is asynchronous: the
// dial runs on its own goroutine and completion reaches the owner through
// the OnOpen/OnError callbacks, matching the transport contract.
package ws
