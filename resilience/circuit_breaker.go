// Package resilience provides the retry/backoff and circuit-breaker
// primitives shared by the Tool Registry and the Distributed Layer.
package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
)

// CircuitState is the breaker's current mode.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig configures threshold-based failure detection.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SleepWindow      time.Duration // time in Open before probing Half-Open
	HalfOpenRequests int           // probes allowed while Half-Open
	Logger           core.Logger
}

func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 3,
		Logger:           core.NoOpLogger{},
	}
}

// CircuitBreaker implements core.CircuitBreaker with a simple
// consecutive-failure threshold, matching the three states described in
// gomind's core/circuit_breaker.go: closed, open, half-open.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	openedAt       time.Time
	consecutiveFailures int32
	halfOpenInFlight    int32

	successCount atomic.Uint64
	failureCount atomic.Uint64
	rejectCount  atomic.Uint64
}

// NewCircuitBreaker constructs a breaker in the Closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SleepWindow <= 0 {
		cfg.SleepWindow = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NoOpLogger{}
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// CanExecute reports whether a new call should be allowed through,
// transitioning Open -> Half-Open once the sleep window has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canExecuteLocked()
}

func (cb *CircuitBreaker) canExecuteLocked() bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.SleepWindow {
			cb.transitionLocked(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return cb.halfOpenInFlight < int32(cb.cfg.HalfOpenRequests)
	default:
		return false
	}
}

// Execute runs fn under circuit-breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	if !cb.canExecuteLocked() {
		cb.mu.Unlock()
		cb.rejectCount.Add(1)
		return core.ErrCircuitBreakerOpen
	}
	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight--
	}
	cb.mu.Unlock()

	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// ExecuteWithTimeout wraps Execute with a bounded context deadline.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return cb.Execute(tctx, func() error {
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-tctx.Done():
			return tctx.Err()
		}
	})
}

// RecordSuccess reports a successful call, closing the circuit if it was
// Half-Open.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.successCount.Add(1)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateClosed)
	}
}

// RecordFailure reports a failed call, opening the circuit once the
// consecutive-failure threshold is reached (or immediately if Half-Open).
func (cb *CircuitBreaker) RecordFailure() {
	cb.failureCount.Add(1)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateOpen)
		return
	}
	cb.consecutiveFailures++
	if cb.consecutiveFailures >= int32(cb.cfg.FailureThreshold) {
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if to == StateClosed {
		cb.consecutiveFailures = 0
	}
	if to == StateHalfOpen {
		cb.halfOpenInFlight = 0
	}
	if from != to {
		cb.cfg.Logger.Info("circuit breaker state change", map[string]interface{}{
			"name": cb.cfg.Name, "from": from.String(), "to": to.String(),
		})
	}
}

func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"successes": cb.successCount.Load(),
		"failures":  cb.failureCount.Load(),
		"rejected":  cb.rejectCount.Load(),
		"state":     cb.GetState(),
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}

var _ core.CircuitBreaker = (*CircuitBreaker)(nil)
