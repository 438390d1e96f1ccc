package chain

import (
	"math/rand"
	"time"
)

// Backoff is the retry policy for a single RPC call site. Each chain client
// carries its own instance so endpoints back off independently.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns the standard policy: 500ms doubling to a 30s cap.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     500 * time.Millisecond,
		Max:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the jittered sleep before retry number attempt (0-based).
// The result lies in [d/2, d] where d is the capped exponential delay.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
