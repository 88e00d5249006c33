// Package breaker provides a per-target circuit breaker for outbound message
// delivery. Each breaker isolates one named target so a failing endpoint
// cannot starve healthy ones.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/deliverycore/pkg/errors"
	"github.com/kart-io/deliverycore/pkg/logger"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed indicates normal operation; calls pass through.
	StateClosed State = iota
	// StateOpen indicates the breaker is rejecting calls.
	StateOpen
	// StateHalfOpen indicates trial calls are permitted.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls the breaker thresholds.
type Config struct {
	// FailureThreshold is the number of net failures in CLOSED state that
	// trips the breaker. Must be >= 1.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// SuccessThreshold is the number of consecutive successes in HALF_OPEN
	// state required to close the breaker. Must be >= 1.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
	// Timeout is how long the breaker stays OPEN before permitting a trial
	// call. Zero permits a trial immediately after the breaker opens.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// ExcludedKinds lists error kinds that never count as failures, e.g.
	// validation errors caused by malformed caller input.
	ExcludedKinds []errors.Kind `json:"excluded_kinds" yaml:"excluded_kinds"`
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success threshold must be >= 1, got %d", c.SuccessThreshold)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	return nil
}

// OpenError is returned when a call is rejected because the breaker is open.
// RetryAfter carries the estimated remaining cooldown.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %v", e.Name, e.RetryAfter)
}

// Status is a point-in-time snapshot of a breaker.
type Status struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// CircuitBreaker is a fault-isolation state machine for one named target.
// All state transitions happen under a single mutex per instance.
type CircuitBreaker struct {
	name   string
	config Config
	logger logger.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a circuit breaker for the named target.
// Invalid config values are replaced with defaults.
func New(name string, config Config, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = logger.Discard
	}
	if err := config.Validate(); err != nil {
		log.Warn("Invalid breaker config, using defaults", "name", name, "error", err)
		excluded := config.ExcludedKinds
		config = DefaultConfig()
		config.ExcludedKinds = excluded
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
		logger: log,
	}
}

// Name returns the target identity this breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Call executes op if the breaker allows it. When the breaker is open the
// call is rejected with *OpenError without invoking op; otherwise op runs
// and its result is recorded and propagated unchanged.
func (cb *CircuitBreaker) Call(ctx context.Context, op func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := op(ctx)
	if err != nil {
		cb.RecordFailure(err)
		return err
	}
	cb.RecordSuccess()
	return nil
}

// allow checks whether a call may proceed, performing the lazy OPEN to
// HALF_OPEN transition when the cooldown has elapsed.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	elapsed := time.Since(cb.lastFailureTime)
	if elapsed >= cb.config.Timeout {
		cb.transition(StateHalfOpen)
		cb.successCount = 0
		return nil
	}

	return &OpenError{Name: cb.name, RetryAfter: cb.config.Timeout - elapsed}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		// Decay rather than reset: one success relieves one unit of a
		// failure streak instead of erasing it.
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure records a failed call. Failures whose kind is excluded by
// configuration are ignored entirely.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if cb.isExcluded(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.lastFailureTime = time.Now()
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.lastFailureTime = time.Now()
		cb.failureCount = 0
		cb.successCount = 0
		cb.transition(StateOpen)
	}
}

// State returns the current state, applying the lazy half-open transition
// so callers observe HALF_OPEN once the cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.config.Timeout {
		cb.transition(StateHalfOpen)
		cb.successCount = 0
	}
	return cb.state
}

// Counts returns the current failure and success counters.
func (cb *CircuitBreaker) Counts() (failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount, cb.successCount
}

// Status returns a snapshot of the breaker for inspection.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Status{
		Name:            cb.name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Reset forces the breaker back to CLOSED with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}

// transition moves to the new state. Caller must hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	cb.logger.Info("Circuit breaker state changed",
		"name", cb.name,
		"from", cb.state.String(),
		"to", to.String())
	cb.state = to
}

func (cb *CircuitBreaker) isExcluded(err error) bool {
	if err == nil || len(cb.config.ExcludedKinds) == 0 {
		return false
	}
	kind := errors.KindOf(err)
	for _, excluded := range cb.config.ExcludedKinds {
		if kind == excluded {
			return true
		}
	}
	return false
}
