package tracker

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads and timed waits so session scheduling
// is testable without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock returns the real wall clock.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// waitStep bounds each increment of a scheduled wait so cancellation is
// observed promptly even when the target is hours away.
const waitStep = time.Second

// WaitUntil blocks until the clock reaches target, sleeping in short
// increments so the wait stays cancellable.
func WaitUntil(ctx context.Context, clock Clock, target time.Time) error {
	for {
		now := clock.Now()
		if !now.Before(target) {
			return nil
		}
		step := target.Sub(now)
		if step > waitStep {
			step = waitStep
		}
		if err := clock.Sleep(ctx, step); err != nil {
			return err
		}
	}
}
