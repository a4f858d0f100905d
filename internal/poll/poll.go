// Package poll provides the bounded wait primitives shared by every browser
// flow: poll a condition at a fixed interval until a deadline, retry an
// action a fixed number of times, or sleep while honouring cancellation.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("poll: timed out")

// TimeoutError is returned by Until when the condition never held.
type TimeoutError struct {
	After time.Duration
	// Last is the last non-fatal probe error, if the probe reported one.
	Last error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %s: %v", e.After, e.Last)
	}
	return fmt.Sprintf("timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// Probe reports a value and whether the awaited condition holds. Returning a
// non-nil error aborts the wait immediately.
type Probe[T any] func(ctx context.Context) (T, bool, error)

// Until calls probe every interval until it reports true, returns an error,
// or timeout elapses. Cancellation of ctx is returned as-is; only the local
// deadline produces a *TimeoutError.
func Until[T any](ctx context.Context, interval, timeout time.Duration, probe Probe[T]) (T, error) {
	var zero T

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, ok, err := probe(waitCtx)
		if err != nil {
			return zero, err
		}
		if ok {
			return v, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, &TimeoutError{After: timeout}
		case <-ticker.C:
		}
	}
}

// Retry runs fn up to attempts times, sleeping delay between failures. The
// last error is returned when every attempt fails.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx, i); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if sleepErr := Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// Sleep blocks for d or until ctx is done.
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
