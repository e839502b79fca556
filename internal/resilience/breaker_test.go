package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker(maxFailures int, timeout time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("test", maxFailures, timeout)
	b.now = func() time.Time { return now }
	return b, &now
}

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v, want errBoom", i, err)
		}
	}

	if err := b.Do(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	b.Do(ctx, fail)
	b.Do(ctx, fail)
	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("success call failed: %v", err)
	}
	b.Do(ctx, fail)
	b.Do(ctx, fail)

	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("circuit opened too early: %v", err)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	b.Do(ctx, fail)
	if err := b.Do(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}

	*now = now.Add(time.Minute)

	// Probe failure reopens the circuit immediately.
	if err := b.Do(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe: got %v, want errBoom", err)
	}
	if err := b.Do(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("after failed probe: got %v, want ErrCircuitOpen", err)
	}

	*now = now.Add(time.Minute)

	// Successful probe closes the circuit.
	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("after successful probe: %v", err)
	}
}

func TestBreakerRespectsContext(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("fn ran with canceled context")
	}
}
