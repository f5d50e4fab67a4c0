package httpx

import (
	"context"
	"errors"
)

// CancelFunc issues one cancel attempt against one of several redundant
// endpoints for the same venue (e.g. two regional gateways), returning
// nil on success.
type CancelFunc func(ctx context.Context) error

// Broadcast races every fn concurrently and returns as soon as the first
// one succeeds, canceling the context passed to the rest. If all fail, it
// returns a joined error of every attempt. Every fn is expected to issue
// the same cancel over a different path, so that redundant connectivity to
// a venue never makes a cancel slower than the single fastest path.
func Broadcast(ctx context.Context, fns ...CancelFunc) error {
	if len(fns) == 0 {
		return nil
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(fns))
	for _, fn := range fns {
		fn := fn
		go func() {
			results <- fn(raceCtx)
		}()
	}

	errs := make([]error, 0, len(fns))
	for i := 0; i < len(fns); i++ {
		err := <-results
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
