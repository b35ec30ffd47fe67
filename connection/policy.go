package connection

import (
	"math/rand/v2"
	"time"
)

// reconnectJitterMax bounds the uniform jitter added to every reconnect
// delay so many clients dropped at once do not retry in lockstep.
const reconnectJitterMax = time.Second

// reconnectPolicy tracks the backoff schedule between reconnect attempts.
// Not safe for concurrent use; the Manager serializes access.
type reconnectPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	attempt int
	delay   time.Duration

	jitter func() time.Duration
}

func newReconnectPolicy(maxAttempts int, base, max time.Duration) *reconnectPolicy {
	return &reconnectPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   base,
		maxDelay:    max,
		delay:       base,
		jitter:      defaultJitter,
	}
}

func defaultJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(reconnectJitterMax)))
}

// exhausted reports whether the attempt budget is spent.
func (p *reconnectPolicy) exhausted() bool {
	return p.attempt >= p.maxAttempts
}

// next consumes one attempt and returns the jittered delay to wait before it.
// The underlying delay doubles per attempt up to maxDelay.
func (p *reconnectPolicy) next() time.Duration {
	d := p.delay + p.jitter()

	p.attempt++
	p.delay *= 2
	if p.delay > p.maxDelay {
		p.delay = p.maxDelay
	}
	return d
}

// reset restores the schedule to its base. Called on every successful
// transition into connected and on a manual reconnect.
func (p *reconnectPolicy) reset() {
	p.attempt = 0
	p.delay = p.baseDelay
}
