// Package retry provides a retry-with-backoff helper for operations that fail
// until some external service becomes available.
package retry

import (
	"context"
	"time"
)

// Policy configures the backoff between attempts. The zero value uses the
// package defaults.
type Policy struct {
	// Initial is the wait after the first failure. Defaults to 100ms.
	Initial time.Duration

	// Max caps the wait between attempts. Defaults to 30s.
	Max time.Duration

	// OnError, if non-nil, is called after every failed attempt with the
	// attempt number (starting at 1), its error, and the wait before the
	// next attempt.
	OnError func(attempt int, err error, wait time.Duration)
}

const (
	defaultInitial = 100 * time.Millisecond
	defaultMax     = 30 * time.Second
)

// Do calls fn until it returns nil or ctx is canceled, doubling the wait
// after each failure up to p.Max. If ctx is canceled while waiting, Do returns
// the context error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	backoff := p.Initial
	if backoff <= 0 {
		backoff = defaultInitial
	}
	maxBackoff := p.Max
	if maxBackoff <= 0 {
		maxBackoff = defaultMax
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.OnError != nil {
			p.OnError(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}
