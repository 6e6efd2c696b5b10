// Package humanize provides randomized timing so unattended runs do not
// produce uniform, machine-like request intervals.
package humanize

import (
	"context"
	"math/rand"
	"time"
)

// Between returns a random duration in [lo, hi].
// If hi <= lo, lo is returned.
func Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// sleepWithContext sleeps for the specified duration or until context is canceled.
// Returns true if the sleep completed normally, false if interrupted.
// Uses time.NewTimer instead of time.After to prevent timer leak.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// SleepWithContext sleeps for d or until ctx is canceled.
// Returns true if the sleep completed normally, false if interrupted.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	return sleepWithContext(ctx, d)
}

// SleepWithJitter sleeps for the given duration plus/minus a random jitter.
// jitterPercent is the maximum jitter as a percentage (0.0 to 1.0).
// For example, SleepWithJitter(ctx, 1*time.Second, 0.2) sleeps for 0.8s-1.2s.
func SleepWithJitter(ctx context.Context, base time.Duration, jitterPercent float64) bool {
	if jitterPercent < 0 {
		jitterPercent = 0
	}
	if jitterPercent > 1 {
		jitterPercent = 1
	}

	jitterRange := float64(base) * jitterPercent
	jitter := (rand.Float64()*2 - 1) * jitterRange

	duration := time.Duration(float64(base) + jitter)
	if duration < 0 {
		duration = 0
	}

	return sleepWithContext(ctx, duration)
}

// RandomWait waits for a random duration in [lo, hi].
func RandomWait(ctx context.Context, lo, hi time.Duration) bool {
	return sleepWithContext(ctx, Between(lo, hi))
}

// Poll calls check up to attempts times, sleeping interval between calls,
// until check reports done. The first call happens immediately.
// It returns the number of calls made and whether check ever reported done.
// A check error stops polling and is returned.
func Poll(ctx context.Context, attempts int, interval time.Duration, check func(ctx context.Context) (bool, error)) (int, bool, error) {
	for i := 0; i < attempts; i++ {
		if i > 0 && !sleepWithContext(ctx, interval) {
			return i, false, ctx.Err()
		}
		done, err := check(ctx)
		if err != nil {
			return i + 1, false, err
		}
		if done {
			return i + 1, true, nil
		}
	}
	return attempts, false, nil
}

// PollUntil calls check every interval until it reports done or deadline
// elapses. Unlike Poll it is bounded by time, not by attempt count.
// A check that fails because the deadline expired counts as not done.
func PollUntil(ctx context.Context, deadline, interval time.Duration, check func(ctx context.Context) (bool, error)) (bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		done, err := check(pollCtx)
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return false, nil
			}
			return false, err
		}
		if done {
			return true, nil
		}
		if !sleepWithContext(pollCtx, interval) {
			return false, nil
		}
	}
}
