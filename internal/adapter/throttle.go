package adapter

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// throttle enforces the adapter-local minimum interval between requests to
// one marketplace, plus a randomized jitter. Adapters are stateless across
// invocations except for this clock.
type throttle struct {
	limiter *rate.Limiter
	jitter  time.Duration
}

func newThrottle(minInterval, jitter time.Duration) *throttle {
	return &throttle{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		jitter:  jitter,
	}
}

// wait blocks until the marketplace may be hit again, then sleeps a random
// extra 0..jitter. Honors ctx cancellation in both phases.
func (t *throttle) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if t.jitter <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(rand.Int64N(int64(t.jitter))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
