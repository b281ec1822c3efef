package delivery

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryDelay computes the wait before retry number attempt (1-based):
// base * 2^(attempt-1) plus jitter, capped at max.
// The exponential series comes from cenkalti/backoff; the retry loop itself
// is driven by the job's persisted next_attempt_at so retries survive
// process restarts.
func RetryDelay(attempt int32, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Once base * 2^(attempt-1) reaches max, the delay is max itself: jitter
	// never pulls a capped delay below the cap.
	exp := base
	for i := int32(1); i < attempt && exp < max; i++ {
		exp *= 2
	}
	if exp >= max {
		return max
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.MaxInterval = max
	b.RandomizationFactor = 0.2

	var d time.Duration
	for i := int32(0); i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d > max {
		d = max
	}
	return d
}
