package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy is a bounded retry budget with an explicit per-attempt delay schedule.
// Backoff[n] is the wait after the (n+1)th failed attempt; the last entry
// repeats when the schedule is shorter than the budget.
type Policy struct {
	Attempts uint
	Backoff  []time.Duration
}

// Delay returns the wait after the given zero-based failed attempt.
func (p Policy) Delay(n uint) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if int(n) >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[n]
}

// Exhausted reports whether attempt (one-based) used up the budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= int(p.attempts())
}

func (p Policy) attempts() uint {
	// retry-go treats zero attempts as unlimited.
	if p.Attempts == 0 {
		return 1
	}
	return p.Attempts
}

// Unrecoverable marks err so that Do stops without spending the remaining budget.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}

// Do runs fn until it succeeds, returns an unrecoverable error, the budget is
// spent or ctx is done. No delay follows the final attempt. The last error is
// returned.
func Do(ctx context.Context, p Policy, fn func() error, opts ...retry.Option) error {
	base := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.attempts()),
		// retry-go numbers the first retry 1.
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			if n == 0 {
				return p.Delay(0)
			}
			return p.Delay(n - 1)
		}),
		retry.LastErrorOnly(true),
	}
	return retry.Do(fn, append(base, opts...)...)
}
