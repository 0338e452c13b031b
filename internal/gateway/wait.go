package gateway

import (
	"context"
	"time"
)

// awaitCondition polls cond every interval until it holds, the ceiling
// elapses or ctx ends. The broker gives no completion handle, so this is a
// poll; wake lets a callback cut the current interval short.
func awaitCondition(ctx context.Context, interval, ceiling time.Duration, cond func() bool, wake <-chan struct{}) error {
	if cond() {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if cond() {
				return nil
			}
			return ErrTimedOut
		case <-tick.C:
		case <-wake:
		}
		if cond() {
			return nil
		}
	}
}
