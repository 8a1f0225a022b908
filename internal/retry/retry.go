// Package retry wraps a single remote store call with bounded retries and a
// fixed delay ladder. Every failure is retried identically; callers that need
// per-error policies classify around it.
package retry

import (
	"context"
	"time"
)

// Policy holds the retry configuration. The zero value is not usable; build
// one with DefaultPolicy or NewPolicy.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delays are waited between attempts. When attempts outnumber entries
	// the last delay repeats.
	Delays []time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the standard policy: 3 attempts with delays of
// 300ms, 800ms and 1500ms.
func DefaultPolicy() Policy {
	return NewPolicy(3, []time.Duration{300 * time.Millisecond, 800 * time.Millisecond, 1500 * time.Millisecond})
}

// NewPolicy builds a policy with the given attempt cap and delay ladder.
func NewPolicy(attempts int, delays []time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{Attempts: attempts, Delays: delays}
}

// Do runs fn until it succeeds or the attempt cap is reached, waiting the
// ladder delay between attempts. The last observed error is returned after
// exhaustion. Context cancellation aborts the wait and returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if err := p.wait(ctx, p.delayFor(i)); err != nil {
			return err
		}
	}
	return lastErr
}

func (p Policy) delayFor(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt >= len(p.Delays) {
		attempt = len(p.Delays) - 1
	}
	return p.Delays[attempt]
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
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
