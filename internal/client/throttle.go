package client

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Throttle paces sends. Wait is called before every send and blocks until
// that send may start, or until ctx is done.
type Throttle interface {
	Wait(ctx context.Context) error
}

// FixedDelay pauses for a fixed duration between the end of one send and
// the start of the next, whatever the previous outcome was. It is not safe
// for concurrent use.
type FixedDelay struct {
	delay   time.Duration
	clock   clock.Clock
	started bool
}

// NewFixedDelay creates a FixedDelay. A nil clk means the wall clock.
func NewFixedDelay(delay time.Duration, clk clock.Clock) *FixedDelay {
	if clk == nil {
		clk = clock.New()
	}
	return &FixedDelay{delay: delay, clock: clk}
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	if !f.started || f.delay <= 0 {
		f.started = true
		return ctx.Err()
	}

	t := f.clock.Timer(f.delay)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TokenBucket lets one send through per interval. Unlike FixedDelay the
// time spent in the request counts toward the interval.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a bucket of size one refilled every interval.
// A non-positive interval disables throttling.
func NewTokenBucket(interval time.Duration) *TokenBucket {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, 1)}
}

func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// NewThrottle builds the throttle named by mode ("delay" or "bucket")
func NewThrottle(mode string, delay time.Duration) Throttle {
	if mode == "bucket" {
		return NewTokenBucket(delay)
	}
	return NewFixedDelay(delay, nil)
}
