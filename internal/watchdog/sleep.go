package watchdog

import (
	"context"
	"time"
)

// Sleeper paces the loop. Implementations must return early with ctx.Err()
// when ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func (f SleepFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
