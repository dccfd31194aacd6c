package client

import (
	"time"
)

// Backoff decides when a failed subscription reconnects.
type Backoff struct {
	// BaseDelay is the delay before the first reconnect attempt.
	BaseDelay time.Duration
	// MaxDelay caps the delay. Zero means uncapped.
	MaxDelay time.Duration
	// MaxAttempts is the number of reconnect attempts before giving up.
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before reconnect attempt n (n >= 1):
// min(BaseDelay * 2^(n-1), MaxDelay).
func (b Backoff) Delay(n int) time.Duration {
	d := b.BaseDelay
	for i := 1; i < n; i++ {
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			break
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
