package httpx

import (
	"context"
	"math/rand"
	"time"

	"github.com/nautilus-go/exec-core/internal/model"
)

// RetryPolicy is a jittered exponential backoff schedule: delay_n =
// min(initial*factor^n, max) + jitter in [0, delay_n/2).
type RetryPolicy struct {
	Initial    time.Duration
	Factor     float64
	Max        time.Duration
	MaxRetries int
}

// DefaultRetryPolicy mirrors a websocket reconnect backoff shape
// (1s initial, doubling, capped at 30s) generalized to REST calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    time.Second,
		Factor:     2.0,
		Max:        30 * time.Second,
		MaxRetries: 5,
	}
}

// Delay computes the backoff delay before attempt n (0-indexed: n=0 is the
// delay before the first retry, i.e. after the initial attempt failed).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < n; i++ {
		d *= p.Factor
	}
	capped := d
	if time.Duration(capped) > p.Max {
		capped = float64(p.Max)
	}
	jitter := rand.Float64() * (capped / 2)
	return time.Duration(capped + jitter)
}

// ShouldRetry decides, given an error, whether another attempt should be
// made. Callers typically wrap model.VenueError and check Retryable, but
// this is pluggable so a venue can override (e.g. retry on a specific
// HTTP status the taxonomy doesn't capture).
type ShouldRetry func(err error) bool

// DefaultShouldRetry retries VenueErrors the taxonomy marks retryable and
// treats context cancellation as non-retryable.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var ve *model.VenueError
	if errorsAs(err, &ve) {
		return ve.Retryable()
	}
	return false
}

// errorsAs is a tiny indirection over errors.As kept local to avoid an
// extra import line at every call site; retry.go is the only user.
func errorsAs(err error, target **model.VenueError) bool {
	for err != nil {
		if ve, ok := err.(*model.VenueError); ok {
			*target = ve
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Do runs fn, retrying per policy while shouldRetry(err) and attempts
// remain, sleeping the jittered backoff between attempts and returning as
// soon as ctx is done or fn succeeds. When the failed attempt's error
// carries a server-hinted retry-after (e.g. a 429 response), the wait
// before the next attempt is at least that long even if it exceeds the
// policy's own computed backoff.
func Do(ctx context.Context, policy RetryPolicy, shouldRetry ShouldRetry, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.Delay(attempt - 1)
			if hint := retryAfter(lastErr); hint > delay {
				delay = hint
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// retryAfter extracts a server-hinted retry delay from err, 0 if none.
func retryAfter(err error) time.Duration {
	var ve *model.VenueError
	if errorsAs(err, &ve) {
		return ve.RetryAfter
	}
	return 0
}
