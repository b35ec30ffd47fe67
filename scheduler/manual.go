package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by explicit Advance calls instead of the wall
// clock. Timers fire synchronously, in deadline order, on the goroutine that
// calls Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	owner    *Manual
	seq      int
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

// NewManual returns a Manual scheduler starting at an arbitrary fixed time.
func NewManual() *Manual {
	return &Manual{now: time.Unix(1700000000, 0)}
}

// Now returns the scheduler's current virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{
		owner:    m,
		seq:      m.seq,
		deadline: m.now.Add(d),
		fn:       fn,
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves virtual time forward by d, firing every timer whose deadline
// is reached. Callbacks may schedule further timers; those fire too if they
// fall within the advanced window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// popDue removes and returns the earliest pending timer with deadline at or
// before target, advancing virtual time to its deadline. Returns nil when no
// timer is due.
func (m *Manual) popDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due *manualTimer
	idx := -1
	for i, t := range m.timers {
		if t.stopped || t.deadline.After(target) {
			continue
		}
		if due == nil || t.deadline.Before(due.deadline) ||
			(t.deadline.Equal(due.deadline) && t.seq < due.seq) {
			due = t
			idx = i
		}
	}
	if due == nil {
		return nil
	}

	m.timers = append(m.timers[:idx], m.timers[idx+1:]...)
	due.fired = true
	if due.deadline.After(m.now) {
		m.now = due.deadline
	}
	return due
}

// Pending returns the number of timers waiting to fire.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// NextDelay returns the delay from virtual now until the earliest pending
// timer, and whether one exists.
func (m *Manual) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.stopped {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return 0, false
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].deadline.Before(pending[j].deadline)
	})
	return pending[0].deadline.Sub(m.now), true
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
