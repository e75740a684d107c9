// Package resilience contains the failover primitives shared by the search
// client and the LLM layer: a three-state circuit breaker and a generic
// fallback group that tries providers in order, skipping ones whose breaker
// has tripped.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after
	// MaxFailures consecutive failures; left when ResetTimeout elapses.
	StateOpen

	// StateHalfOpen admits up to HalfOpenMax probe calls. All probes
	// succeeding closes the breaker; any probe failing re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures opens the breaker after this many consecutive failures
	// while closed. Default 5.
	MaxFailures int

	// ResetTimeout is the open-state dwell time before probing resumes.
	// Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget of the half-open state. Default 3.
	HalfOpenMax int
}

// CircuitBreaker is a consecutive-failure breaker. State transitions happen
// inside [CircuitBreaker.Execute]; the open→half-open edge is taken lazily on
// the first call after the reset timeout.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu       sync.Mutex
	state    State
	failures int       // consecutive, closed state only
	openedAt time.Time // last failure while open or opening
	probes   int       // calls admitted this half-open round
	probeErr bool      // a probe failed this round
}

// NewCircuitBreaker builds a breaker from cfg, filling zero fields with the
// documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker rejects the call. The error from fn is
// returned unchanged; rejected calls return [ErrCircuitOpen] without invoking
// fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()
	cb.settle(probe, callErr)
	return callErr
}

// admit decides whether a call may proceed, advancing open→half-open when the
// dwell time is up. Reports whether the admitted call counts as a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeErr = false
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle applies the call outcome to the breaker state.
func (cb *CircuitBreaker) settle(probe bool, callErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case callErr != nil && probe:
		// One failed probe re-opens immediately.
		cb.probeErr = true
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)

	case callErr != nil:
		cb.failures++
		cb.openedAt = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name, "consecutive_failures", cb.failures)
		}

	case probe:
		if cb.probes >= cb.halfOpenMax && !cb.probeErr {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}

	default:
		cb.failures = 0
	}
}

// State reports the breaker's mode. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen] even though the stored state only advances
// on the next Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeErr = false
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
