package scheduler

import (
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()

	var fired []string
	m.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	m.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	m.Advance(5 * time.Second)

	if got, want := len(fired), 3; got != want {
		t.Fatalf("fired %d timers, want %d", got, want)
	}
	for i, want := range []string{"a", "b", "c"} {
		if fired[i] != want {
			t.Errorf("fired[%d] = %q, want %q", i, fired[i], want)
		}
	}
}

func TestManualDoesNotFireEarly(t *testing.T) {
	m := NewManual()

	fired := false
	m.AfterFunc(2*time.Second, func() { fired = true })

	m.Advance(time.Second)
	if fired {
		t.Error("timer fired before its deadline")
	}
	if m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", m.Pending())
	}

	m.Advance(time.Second)
	if !fired {
		t.Error("timer did not fire at its deadline")
	}
}

func TestManualCascadingTimers(t *testing.T) {
	m := NewManual()

	var fired []string
	m.AfterFunc(time.Second, func() {
		fired = append(fired, "first")
		m.AfterFunc(time.Second, func() { fired = append(fired, "second") })
	})

	// The rescheduled timer lands inside the advanced window and fires too.
	m.Advance(2 * time.Second)

	if got, want := len(fired), 2; got != want {
		t.Fatalf("fired %d timers, want %d: %v", got, want, fired)
	}
	if fired[0] != "first" || fired[1] != "second" {
		t.Errorf("fired = %v, want [first second]", fired)
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual()

	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop = false on a pending timer")
	}
	if timer.Stop() {
		t.Error("Stop = true on an already stopped timer")
	}

	m.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if m.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", m.Pending())
	}
}

func TestManualNextDelay(t *testing.T) {
	m := NewManual()

	if _, ok := m.NextDelay(); ok {
		t.Error("NextDelay reported a timer on an empty scheduler")
	}

	m.AfterFunc(5*time.Second, func() {})
	m.AfterFunc(2*time.Second, func() {})

	d, ok := m.NextDelay()
	if !ok {
		t.Fatal("NextDelay = !ok with timers pending")
	}
	if d != 2*time.Second {
		t.Errorf("NextDelay = %v, want 2s", d)
	}

	m.Advance(time.Second)
	d, _ = m.NextDelay()
	if d != time.Second {
		t.Errorf("NextDelay after advance = %v, want 1s", d)
	}
}

func TestWallSchedulerFires(t *testing.T) {
	done := make(chan struct{})
	Wall().AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for wall timer")
	}
}

func TestWallSchedulerStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := Wall().AfterFunc(50*time.Millisecond, func() { fired <- struct{}{} })

	if !timer.Stop() {
		t.Error("Stop = false on a pending wall timer")
	}

	select {
	case <-fired:
		t.Error("stopped wall timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}
