package feedsync

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// Backoff bounds reconnection attempts.
type Backoff struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration
	// Cap is the largest delay between attempts.
	Cap time.Duration
	// Attempts is the total number of attempts per (re)connection.
	// Zero or negative retries forever.
	Attempts int
	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64
}

// DefaultBackoff returns the reconnect policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:     time.Second,
		Cap:      30 * time.Second,
		Attempts: 8,
		Jitter:   0.2,
	}
}

// Delay returns the wait after the given failed attempt (1-based), before
// jitter: Base doubled per attempt, bounded by Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap || d <= 0 {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// jittered applies Jitter to d using r, a number in [0, 1).
func (b Backoff) jittered(d time.Duration, r float64) time.Duration {
	if b.Jitter <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	j := time.Duration(float64(d) - spread + 2*spread*r)
	if j > b.Cap {
		j = b.Cap
	}
	if j <= 0 {
		j = time.Millisecond
	}
	return j
}

func (b Backoff) normalized() Backoff {
	def := DefaultBackoff()
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Cap < b.Base {
		b.Cap = b.Base
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		b.Jitter = def.Jitter
	}
	return b
}

// retryCall runs attempt until it succeeds, ctx is cancelled, or the
// attempt budget is spent. Errors wrapping context cancellation are fatal.
func retryCall(ctx context.Context, b Backoff, clk clock.Clock, topic string, attempt func() error) error {
	b = b.normalized()
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = -1
	}

	return retry.Call(retry.CallArgs{
		Func: attempt,
		IsFatalError: func(err error) bool {
			return errors.Is(err, context.Canceled) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, n int) {
			slog.Warn("subscription attempt failed",
				"topic", topic,
				"attempt", n,
				"error", err,
			)
		},
		Attempts: attempts,
		Delay:    b.Base,
		MaxDelay: b.Cap,
		BackoffFunc: func(_ time.Duration, n int) time.Duration {
			return b.jittered(b.Delay(n), rand.Float64())
		},
		Clock: clk,
		Stop:  ctx.Done(),
	})
}
