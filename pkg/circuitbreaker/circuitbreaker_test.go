package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

// fakeClock lets tests move through the cooldown without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	cb := New(cfg)
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cb.now = clock.now
	return cb, clock
}

func fail(cb *CircuitBreaker) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error {
		return errUpstream
	})
}

func succeed(cb *CircuitBreaker) error {
	return cb.ExecuteContext(context.Background(), func(context.Context) error {
		return nil
	})
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{MaxFailures: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := fail(cb); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: got %v, want upstream error", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := fail(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
}

func TestSuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(Config{MaxFailures: 3, Timeout: time.Minute})

	fail(cb)
	fail(cb)
	if err := succeed(cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cb.ConsecutiveFailures(); got != 0 {
		t.Fatalf("consecutive failures = %d, want 0", got)
	}
	fail(cb)
	fail(cb)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after interrupted streak", got)
	}
}

func TestProbeClosesAfterCooldown(t *testing.T) {
	cb, clock := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Minute})

	fail(cb)
	if err := succeed(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen before cooldown", err)
	}

	clock.advance(time.Minute)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", got)
	}
	if err := succeed(cb); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", got)
	}
}

func TestFailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Minute})

	fail(cb)
	clock.advance(time.Minute)
	if err := fail(cb); !errors.Is(err, errUpstream) {
		t.Fatalf("probe: got %v, want upstream error", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v, want reopened", got)
	}

	// The failed probe restarts the cooldown.
	clock.advance(30 * time.Second)
	if err := succeed(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen mid-cooldown", err)
	}
}

func TestSingleProbeInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(Config{MaxFailures: 1, Timeout: time.Minute})

	fail(cb)
	clock.advance(time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		cb.ExecuteContext(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := succeed(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen while probe in flight", err)
	}
	close(release)
	<-done
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
