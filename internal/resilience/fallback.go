package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// successful call, whether because the calls failed or the breakers were open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker configuration stamped onto each entry of a
// [FallbackGroup]. The per-entry Name is filled in from the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// FallbackGroup holds an ordered list of same-typed providers, each behind
// its own circuit breaker. Calls go to the first entry whose breaker admits
// them and which succeeds; the rest are never touched.
//
// Safe for concurrent use once assembled. AddFallback is not safe to call
// concurrently with Execute.
type FallbackGroup[T any] struct {
	names    []string
	values   []T
	breakers []*CircuitBreaker
	cfg      FallbackConfig
}

// NewFallbackGroup creates a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all previously added ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.names = append(fg.names, name)
	fg.values = append(fg.values, value)
	fg.breakers = append(fg.breakers, NewCircuitBreaker(bc))
}

// Execute runs fn against entries in order until one call succeeds. Entries
// with an open breaker are skipped. When nothing succeeds the last error is
// wrapped in [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a value.
// A package-level function because methods cannot introduce type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i, value := range fg.values {
		var result R
		err := fg.breakers[i].Execute(func() error {
			var callErr error
			result, callErr = fn(value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", fg.names[i])
		} else {
			slog.Warn("provider failed, trying next", "provider", fg.names[i], "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
