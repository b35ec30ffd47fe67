// Package connection implements the realtime Connection Manager.
//
// The Manager:
//   - Owns exactly one logical transport session and its state machine
//   - Recovers from drops with bounded, jittered exponential backoff
//   - Measures link quality from heartbeat round-trip latency
//   - Buffers outbound messages in the Outbox while disconnected and
//     replays them in order after reconnection
//   - Notifies registered listeners of state, quality, and error events
package connection
