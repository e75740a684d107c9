package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(primary, fallback string) *FallbackGroup[string] {
	fg := NewFallbackGroup(primary, primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute},
	})
	fg.AddFallback(fallback, fallback)
	return fg
}

func TestFallbackGroupPrimarySuccess(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")
	var tried []string
	err := fg.Execute(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if len(tried) != 1 || tried[0] != "primary" {
		t.Errorf("tried = %v, want [primary]", tried)
	}
}

func TestFallbackGroupFailover(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")
	var tried []string
	err := fg.Execute(func(v string) error {
		tried = append(tried, v)
		if v == "primary" {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if len(tried) != 2 || tried[1] != "backup" {
		t.Errorf("tried = %v, want [primary backup]", tried)
	}
}

func TestFallbackGroupAllFail(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")
	err := fg.Execute(func(string) error { return errBoom })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("Execute() = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")

	// Trip the primary's breaker (MaxFailures = 2).
	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errBoom
			}
			return nil
		})
	}

	// With the primary open, only the backup is consulted.
	var tried []string
	err := fg.Execute(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if len(tried) != 1 || tried[0] != "backup" {
		t.Errorf("tried = %v, want [backup]", tried)
	}
}

func TestExecuteWithResultSuccess(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")
	got, err := ExecuteWithResult(fg, func(v string) (int, error) {
		return len(v), nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult() error = %v", err)
	}
	if got != len("primary") {
		t.Errorf("result = %d, want %d", got, len("primary"))
	}
}

func TestExecuteWithResultFailover(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errBoom
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult() error = %v", err)
	}
	if got != "backup" {
		t.Errorf("result = %q, want %q", got, "backup")
	}
}

func TestExecuteWithResultAllFail(t *testing.T) {
	t.Parallel()

	fg := newGroup("primary", "backup")
	got, err := ExecuteWithResult(fg, func(string) (int, error) {
		return 7, errBoom
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("ExecuteWithResult() error = %v, want ErrAllFailed", err)
	}
	if got != 0 {
		t.Errorf("result = %d, want zero value on failure", got)
	}
}
