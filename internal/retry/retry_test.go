package retry

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"
)

func TestDo_ImmediateSuccess(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		calls := 0
		err := Do(t.Context(), Policy{}, func(context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected 1 call, got %d", calls)
		}
	})
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		calls := 0
		err := Do(t.Context(), Policy{}, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("broker unavailable")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})
}

func TestDo_BackoffDoublesAndCaps(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var waits []time.Duration
		var attempts []int
		calls := 0
		p := Policy{
			Initial: time.Second,
			Max:     5 * time.Second,
			OnError: func(attempt int, _ error, wait time.Duration) {
				attempts = append(attempts, attempt)
				waits = append(waits, wait)
			},
		}

		start := time.Now()
		err := Do(t.Context(), p, func(context.Context) error {
			calls++
			if calls <= 5 {
				return errors.New("fail")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
		if len(waits) != len(want) {
			t.Fatalf("got waits %v, want %v", waits, want)
		}
		for i := range want {
			if waits[i] != want[i] {
				t.Fatalf("wait %d: got %v, want %v", i, waits[i], want[i])
			}
			if attempts[i] != i+1 {
				t.Fatalf("attempt %d reported as %d", i+1, attempts[i])
			}
		}
		if elapsed := time.Since(start); elapsed != 17*time.Second {
			t.Fatalf("elapsed %v, want 17s", elapsed)
		}
	})
}

func TestDo_ContextCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())

		errCh := make(chan error, 1)
		go func() {
			errCh <- Do(ctx, Policy{}, func(context.Context) error {
				return errors.New("always fails")
			})
		}()

		synctest.Wait()
		cancel()

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	})
}

func TestDo_PassesContext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		type key struct{}
		ctx := context.WithValue(t.Context(), key{}, "v")
		err := Do(ctx, Policy{}, func(got context.Context) error {
			if got.Value(key{}) != "v" {
				t.Error("fn did not receive the caller's context")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}
