package jobengine

import (
	"math"
	"math/rand"
	"time"
)

// computeBackoff implements spec.md §8's retry schedule exactly:
// base·2^(attempts-1), capped at maxDelay, plus jitter drawn uniformly from
// [0, jitterFrac·delay). cenkalti/backoff/v4's ExponentialBackOff applies
// randomization as a multiplicative factor around the current interval
// rather than a one-sided addition on top of a hard cap, so it can't
// reproduce this schedule bit-for-bit; the transient-retry path in
// pkg/gateway uses that library instead, where the exact curve isn't
// load-bearing.
func computeBackoff(attempts int, baseDelay, maxDelay time.Duration, jitterFrac float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := float64(baseDelay) * math.Pow(2, float64(attempts-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	jitter := rand.Float64() * jitterFrac * delay
	return time.Duration(delay + jitter)
}
