package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings configures a breaker
type Settings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32
	// Timeout is how long the circuit stays open before allowing probe calls
	Timeout time.Duration
	// HalfOpenMaxCalls is the number of successful probes needed to close again
	HalfOpenMaxCalls uint32
	// OnStateChange is called after every transition, outside the lock
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker fails calls to an unhealthy dependency fast instead of
// waiting on it. It never retries.
type CircuitBreaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu              sync.Mutex
	state           State
	failures        uint32
	lastFailureTime time.Time
	halfOpenCalls   uint32
	halfOpenOK      uint32
	requests        uint64
	rejected        uint64

	logger *logrus.Logger
}

// New creates a new circuit breaker
func New(name string, settings Settings, logger *logrus.Logger) *CircuitBreaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.HalfOpenMaxCalls == 0 {
		settings.HalfOpenMaxCalls = 3
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		state:    StateClosed,
		logger:   logger,
	}
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn if the circuit allows it. Context cancellation by the caller
// is not counted as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())))
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()

	cb.advance()
	cb.requests++

	switch cb.state {
	case StateOpen:
		cb.rejected++
		cb.mu.Unlock()
		return &CircuitBreakerError{Name: cb.name, State: StateOpen}
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.settings.HalfOpenMaxCalls {
			cb.rejected++
			cb.mu.Unlock()
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.halfOpenCalls++
	}

	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	from := cb.state

	if success {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.settings.HalfOpenMaxCalls {
				cb.setState(StateClosed)
			}
		}
	} else {
		cb.failures++
		cb.lastFailureTime = cb.now()
		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.settings.MaxFailures {
				cb.setState(StateOpen)
			}
		case StateHalfOpen:
			cb.setState(StateOpen)
		}
	}

	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// advance moves an expired open circuit to half-open. Caller holds mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailureTime) >= cb.settings.Timeout {
		cb.setState(StateHalfOpen)
	}
}

// setState transitions the breaker. Caller holds mu.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
	if to == StateClosed {
		cb.failures = 0
	}

	entry := cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from":            from.String(),
		"state":           to.String(),
		"failures":        cb.failures,
	})
	if to == StateOpen {
		entry.Warn("Circuit breaker opened due to failures")
	} else {
		entry.Info("Circuit breaker state changed")
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.name, from, to)
	}
}

// GetState returns the current state, moving an expired open circuit to half-open
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	from := cb.state
	cb.advance()
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return to
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        uint32    `json:"consecutive_failures"`
	Requests        uint64    `json:"requests"`
	Rejected        uint64    `json:"rejected"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		Requests:        cb.requests,
		Rejected:        cb.rejected,
		LastFailureTime: cb.lastFailureTime,
	}
}

// CircuitBreakerError is returned when the breaker rejects a call
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError checks if an error is a circuit breaker rejection
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
