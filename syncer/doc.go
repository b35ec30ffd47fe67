// Package syncer contains the application-level realtime synchronizers.
//
// Each synchronizer subscribes to one registry channel, maps provider event
// payloads into a small closed set of domain events, reconciles its cached
// view with the authoritative remote state, and invokes caller-supplied
// notification callbacks. Sends are delegated to the outbound queue through
// the channel handle, so user actions are buffered rather than rejected
// while offline.
package syncer
