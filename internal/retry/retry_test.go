package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	p := DefaultPolicy()
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("no delay expected on first-try success")
		return nil
	}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	p := DefaultPolicy()
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Exactly two delays, following the ladder.
	if len(delays) != 2 {
		t.Fatalf("delays = %v, want 2 entries", delays)
	}
	if delays[0] != 300*time.Millisecond || delays[1] != 800*time.Millisecond {
		t.Errorf("delays = %v", delays)
	}
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	p := NewPolicy(3, []time.Duration{time.Millisecond})
	p.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	wantErr := errors.New("attempt 3")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 3 {
			return wantErr
		}
		return errors.New("earlier")
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_LastDelayRepeats(t *testing.T) {
	p := NewPolicy(5, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond})
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("x") })
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delays[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(3, []time.Duration{time.Minute})

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error { return errors.New("fail") })
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestNewPolicy_MinimumOneAttempt(t *testing.T) {
	p := NewPolicy(0, nil)
	calls := 0
	_ = p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
