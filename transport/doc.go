// Package transport defines the narrow interface the realtime core expects
// from an underlying pub/sub provider.
//
// The core never depends on a concrete backend: it is handed a Transport at
// construction time and drives it through connect/disconnect/send/subscribe
// requests, observing completion through the registered callbacks. The
// shipped websocket implementation lives in transport/ws; tests use in-memory
// doubles.
package transport
