package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing sink for resetTimeout after maxFailures
// consecutive failures. It never retries on its own.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	state        CircuitBreakerState
	failureCount int
	lastFailTime time.Time
	now          func() time.Time
	onChange     func(CircuitBreakerState)
	mutex        sync.RWMutex
}

// NewCircuitBreaker creates a closed breaker. onChange may be nil.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, onChange func(CircuitBreakerState)) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
		onChange:     onChange,
	}
}

// allow reports whether a call may go through, moving an expired open breaker to half-open
func (cb *CircuitBreaker) allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) >= cb.resetTimeout {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) onFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount++
	cb.lastFailTime = cb.now()

	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

// setState must be called with the mutex held
func (cb *CircuitBreaker) setState(s CircuitBreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	if cb.onChange != nil {
		cb.onChange(s)
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Status returns the current circuit breaker status for monitoring
func (cb *CircuitBreaker) Status() map[string]interface{} {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return map[string]interface{}{
		"state":          cb.state.String(),
		"failure_count":  cb.failureCount,
		"last_fail_time": cb.lastFailTime,
		"max_failures":   cb.maxFailures,
		"reset_timeout":  cb.resetTimeout.String(),
	}
}

// BreakerSink guards a live sink with a circuit breaker
type BreakerSink struct {
	Sink
	breaker *CircuitBreaker
}

func NewBreakerSink(sink Sink, breaker *CircuitBreaker) *BreakerSink {
	return &BreakerSink{Sink: sink, breaker: breaker}
}

func (b *BreakerSink) Publish(ctx context.Context, msg Message) error {
	if !b.breaker.allow() {
		return fmt.Errorf("%s: %w", b.Sink.Name(), ErrCircuitOpen)
	}
	if err := b.Sink.Publish(ctx, msg); err != nil {
		b.breaker.onFailure()
		return err
	}
	b.breaker.onSuccess()
	return nil
}

func (b *BreakerSink) Breaker() *CircuitBreaker {
	return b.breaker
}
