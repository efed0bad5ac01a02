// internal/retry/retry.go
package retry

import (
	"errors"
	"math/rand"
	"time"
)

// Permanent wraps an error that must not be retried. Do unwraps it and
// returns the inner error immediately.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

func (p *Permanent) Unwrap() error { return p.Err }

// Stop marks err as non-retryable.
func Stop(err error) error {
	return &Permanent{Err: err}
}

// Policy is an explicit retry policy: max attempts, base delay, backoff
// multiplier and a jitter bound added to each sleep. The zero value retries
// once with no delay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      time.Duration

	// Sleep is swappable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. It returns
// nil on the first success, the inner error of a Permanent immediately, and
// the last error once attempts are exhausted.
func (p Policy) Do(fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		wait := delay
		if p.Jitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		if wait > 0 {
			sleep(wait)
		}
		if p.Multiplier > 0 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	return lastErr
}
