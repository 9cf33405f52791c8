package upstream

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential retry delays.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps every delay.
	Max time.Duration

	// Factor multiplies the delay after each attempt.
	Factor float64
}

// DefaultBackoff starts at one second, doubles, and caps at a minute.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: time.Minute, Factor: 2}
}

// Delay returns the capped delay before retry number attempt (1-based),
// without jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Max) {
			return b.Max
		}
	}
	return min(time.Duration(d), b.Max)
}

// Jittered returns a delay uniformly drawn from [Delay/2, Delay].
// rnd must return a value in [0, n); nil uses math/rand/v2.
func (b Backoff) Jittered(attempt int, rnd func(n int64) int64) time.Duration {
	d := b.Delay(attempt)
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	if rnd == nil {
		rnd = rand.Int64N
	}
	return time.Duration(half + rnd(half+1))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
