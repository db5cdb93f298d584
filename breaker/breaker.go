// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

// Package breaker implements a circuit breaker for outbound calls to flaky
// collaborators such as push notification endpoints and agent transports.
//
// A breaker starts closed. After FailureThreshold consecutive failures it
// opens and rejects calls immediately. Once Timeout has elapsed since the
// most recent failure the next call is admitted as a probe (half_open).
// SuccessThreshold consecutive probe successes close the breaker again; a
// single probe failure reopens it at once.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State identifies the current mode of a circuit breaker.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects calls until the timeout since the last failure elapses.
	StateOpen
	// StateHalfOpen admits probe calls to test whether the callee recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrCircuitOpen reports a call rejected because the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// OpenError carries the breaker name and the remaining cooldown for a
// rejected call. It unwraps to ErrCircuitOpen.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q open, retry after %v", e.Name, e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrCircuitOpen) match.
func (e OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// Config configures a circuit breaker. Zero fields take the defaults from
// DefaultConfig.
type Config struct {
	// Name identifies the breaker in errors and state change callbacks.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half_open successes that
	// closes the breaker.
	SuccessThreshold int
	// Timeout is how long the breaker stays open after the last failure
	// before admitting a probe.
	Timeout time.Duration
	// OnStateChange, when set, is invoked on its own goroutine after every
	// state transition.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		Name:             "circuit",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker tracks consecutive call outcomes and short-circuits calls
// to a failing collaborator. It is safe for concurrent use.
type CircuitBreaker struct {
	config Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	now func() time.Time
}

// Snapshot is a point-in-time view of a breaker for stats reporting.
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failureCount"`
	SuccessCount    int       `json:"successCount"`
	LastFailureTime time.Time `json:"lastFailureTime,omitzero"`
}

// New creates a circuit breaker from the given config. Zero thresholds and
// timeout fall back to DefaultConfig; negative values are rejected.
func New(config Config) (*CircuitBreaker, error) {
	defaults := DefaultConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.FailureThreshold < 0 {
		return nil, fmt.Errorf("failure threshold cannot be negative: %d", config.FailureThreshold)
	}
	if config.SuccessThreshold < 0 {
		return nil, fmt.Errorf("success threshold cannot be negative: %d", config.SuccessThreshold)
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative: %v", config.Timeout)
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}, nil
}

// Execute runs fn under breaker protection. When the breaker rejects the
// call, fn is not invoked and an OpenError is returned. Otherwise fn's
// outcome is recorded and its error returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.Mark(err)
	return err
}

// Allow reports whether a call may proceed. Callers that use Allow directly
// must follow up with Mark to record the outcome.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		remaining := cb.config.Timeout - cb.now().Sub(cb.lastFailureTime)
		if remaining < 0 {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
			return nil
		}
		return OpenError{Name: cb.config.Name, RetryAfter: remaining}
	default:
		return fmt.Errorf("unknown circuit breaker state: %v", cb.state)
	}
}

// Mark records the outcome of a call previously admitted by Allow. A nil
// error counts as success.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// One probe failure is enough evidence that the callee is still down.
		cb.setState(StateOpen)
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) setState(next State) {
	prev := cb.state
	if prev == next {
		return
	}
	cb.state = next
	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a point-in-time view of the breaker.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:            cb.config.Name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}
