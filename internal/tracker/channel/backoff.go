package channel

import (
	"math/rand"
	"time"
)

// reconnectDelay computes the wait before reconnect attempt n (1-indexed):
// exponential from base, capped at maxDelay, with half jitter so a fleet of
// trackers does not reconnect in lockstep after a server restart.
func reconnectDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay || d < 0 {
			d = maxDelay
			break
		}
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
