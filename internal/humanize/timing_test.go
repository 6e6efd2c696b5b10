package humanize

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBetween(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := Between(time.Second, 3*time.Second)
		if got < time.Second || got > 3*time.Second {
			t.Errorf("Between(1s, 3s) = %v, out of range", got)
		}
	}
	if got := Between(2*time.Second, time.Second); got != 2*time.Second {
		t.Errorf("Expected inverted range to return lo, got %v", got)
	}
}

func TestSleepWithContext_Completes(t *testing.T) {
	start := time.Now()
	completed := SleepWithContext(context.Background(), 30*time.Millisecond)
	elapsed := time.Since(start)

	if !completed {
		t.Error("SleepWithContext should return true when sleep completes")
	}
	if elapsed < 30*time.Millisecond {
		t.Errorf("SleepWithContext returned too quickly: %v", elapsed)
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	completed := SleepWithContext(ctx, 5*time.Second)
	elapsed := time.Since(start)

	if completed {
		t.Error("SleepWithContext should return false when context is cancelled")
	}
	if elapsed > 2*time.Second {
		t.Errorf("SleepWithContext didn't cancel quickly enough: %v", elapsed)
	}
}

func TestSleepWithContext_ZeroDuration(t *testing.T) {
	if !SleepWithContext(context.Background(), 0) {
		t.Error("Expected zero sleep on live context to complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if SleepWithContext(ctx, 0) {
		t.Error("Expected zero sleep on cancelled context to report interruption")
	}
}

func TestSleepWithJitter(t *testing.T) {
	base := 40 * time.Millisecond
	for i := 0; i < 10; i++ {
		start := time.Now()
		if !SleepWithJitter(context.Background(), base, 0.25) {
			t.Fatal("SleepWithJitter should return true when sleep completes")
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("SleepWithJitter returned after %v, below jitter floor", elapsed)
		}
	}
}

func TestPoll(t *testing.T) {
	t.Run("succeeds on third attempt", func(t *testing.T) {
		calls := 0
		n, done, err := Poll(context.Background(), 8, time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !done {
			t.Error("Expected poll to report done")
		}
		if n != 3 {
			t.Errorf("Expected 3 attempts, got %d", n)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		n, done, err := Poll(context.Background(), 4, time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return false, nil
		})
		if err != nil || done {
			t.Fatalf("Expected not done without error, got done=%v err=%v", done, err)
		}
		if n != 4 || calls != 4 {
			t.Errorf("Expected 4 attempts, got n=%d calls=%d", n, calls)
		}
	})

	t.Run("stops on check error", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := Poll(context.Background(), 5, time.Millisecond, func(context.Context) (bool, error) {
			return false, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("Expected boom, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, done, err := Poll(ctx, 5, time.Hour, func(context.Context) (bool, error) {
			return false, nil
		})
		if done {
			t.Error("Expected not done")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

func TestPollUntil(t *testing.T) {
	calls := 0
	done, err := PollUntil(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls >= 2, nil
	})
	if err != nil || !done {
		t.Fatalf("Expected done without error, got done=%v err=%v", done, err)
	}

	start := time.Now()
	done, err = PollUntil(context.Background(), 30*time.Millisecond, 5*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if err != nil || done {
		t.Errorf("Expected deadline expiry without error, got done=%v err=%v", done, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("PollUntil overran its deadline: %v", elapsed)
	}
}
