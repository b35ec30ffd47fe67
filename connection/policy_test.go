package connection

import (
	"testing"
	"time"
)

func TestReconnectPolicyDoublesAndCaps(t *testing.T) {
	p := newReconnectPolicy(10, time.Second, 30*time.Second)
	p.jitter = func() time.Duration { return 0 }

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := p.next(); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestReconnectPolicyExhausted(t *testing.T) {
	p := newReconnectPolicy(3, time.Second, 30*time.Second)
	p.jitter = func() time.Duration { return 0 }

	for i := 0; i < 3; i++ {
		if p.exhausted() {
			t.Fatalf("exhausted after %d attempts, budget is 3", i)
		}
		p.next()
	}
	if !p.exhausted() {
		t.Error("expected exhausted after 3 attempts")
	}
}

func TestReconnectPolicyReset(t *testing.T) {
	p := newReconnectPolicy(3, time.Second, 30*time.Second)
	p.jitter = func() time.Duration { return 0 }

	p.next()
	p.next()
	p.next()
	if !p.exhausted() {
		t.Fatal("expected exhausted")
	}

	p.reset()
	if p.exhausted() {
		t.Error("reset did not restore the attempt budget")
	}
	if got := p.next(); got != time.Second {
		t.Errorf("delay after reset = %v, want %v", got, time.Second)
	}
}

func TestReconnectPolicyJitterBounds(t *testing.T) {
	p := newReconnectPolicy(100, time.Second, 30*time.Second)

	for i := 0; i < 100; i++ {
		base := p.delay
		got := p.next()
		if got < base || got >= base+reconnectJitterMax {
			t.Fatalf("attempt %d: delay %v outside [%v, %v)", i+1, got, base, base+reconnectJitterMax)
		}
		if p.exhausted() {
			p.reset()
		}
	}
}
