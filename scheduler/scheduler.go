// Package scheduler abstracts delayed callbacks behind an injectable
// interface so reconnect and heartbeat timing is deterministically testable.
package scheduler

import "time"

// Timer is a handle to a pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call stopped the
	// timer before it fired.
	Stop() bool
}

// Scheduler schedules one-shot delayed callbacks.
type Scheduler interface {
	// AfterFunc runs fn on its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

type wall struct{}

// Wall returns the wall-clock scheduler backed by time.AfterFunc.
func Wall() Scheduler {
	return wall{}
}

func (wall) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
