package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// trip drives cb to the open state with n consecutive failures.
func trip(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for range n {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() = %v, want errBoom", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after %d failures, want open", cb.State(), n)
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "d"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = (%d, %v, %d), want (5, 30s, 3)",
			cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("new breaker State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerClosedForwardsCalls(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3})
	calls := 0
	for range 10 {
		if err := cb.Execute(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Execute() = %v", err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})
	trip(t, cb, 3)

	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() after trip = %v, want ErrCircuitOpen", err)
	}
	if ran {
		t.Error("fn ran while the breaker was open")
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute})
	// Two failures, a success, two more failures: never three in a row.
	for _, fail := range []bool{true, true, false, true, true} {
		_ = cb.Execute(func() error {
			if fail {
				return errBoom
			}
			return nil
		})
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	trip(t, cb, 1)

	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Errorf("State() after timeout = %v, want half-open", cb.State())
	}
}

func TestCircuitBreakerClosesAfterProbes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(t, cb, 1)
	time.Sleep(20 * time.Millisecond)

	for range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe Execute() = %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() after successful probes = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerReopensOnProbeFailure(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})
	trip(t, cb, 1)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe Execute() = %v, want errBoom", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("State() after failed probe = %v, want open", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() after re-open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	trip(t, cb, 1)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("State() after Reset = %v, want closed", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() after Reset = %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
