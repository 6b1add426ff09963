// Package retry implements the shared exponential-backoff-with-ceiling retry
// helper used by webhook delivery and push-message notification (package
// notify). Grounded on blrec's `core/retry.py` and
// `utils/operators/retry.py` (tenacity-based wait_exponential with a max
// delay and a max elapsed time, rather than a fixed attempt count). No
// example repo in the corpus imports a retry library, so this stays on the
// standard library instead of reaching for one.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy parameterizes one retry loop.
type Policy struct {
	// InitialDelay is the wait before the first retry (attempt 2).
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Multiplier scales the delay after each attempt. Defaults to 2 if zero.
	Multiplier float64
	// MaxElapsed stops retrying once this much time has passed since the
	// first attempt. Zero means no elapsed-time ceiling.
	MaxElapsed time.Duration
	// MaxAttempts stops retrying after this many attempts (including the
	// first). Zero means no attempt ceiling.
	MaxAttempts int
}

// ErrGiveUp wraps the last error once a Policy's ceiling is reached.
var ErrGiveUp = errors.New("retry: giving up")

// Do calls fn until it succeeds, ctx is cancelled, or the policy's ceiling is
// reached, sleeping with exponential backoff (plus jitter) between attempts.
// fn's returned error is only retried; a nil error returns immediately.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}

	start := time.Now()
	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return errGiveUp(lastErr)
		}
		if p.MaxElapsed > 0 && time.Since(start) >= p.MaxElapsed {
			return errGiveUp(lastErr)
		}

		wait := jitter(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

func errGiveUp(cause error) error {
	return errors.Join(ErrGiveUp, cause)
}

// jitter randomizes d by up to +/-20%, so concurrently-retrying callers
// (many tasks hitting a reconnect at once) don't all wake up in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * spread
	return d + time.Duration(offset)
}
