package nats

import (
	"fmt"
	"sync"
	"time"
)

// circuitState mirrors the reference actor runtime's circuit breaker states,
// adapted here to protect Notify against a degraded or partitioned NATS
// connection instead of an unreliable downstream actor call.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker trips after maxFailures consecutive publish failures and
// stays open for timeout before allowing a trial publish through.
type circuitBreaker struct {
	mu              sync.Mutex
	state           circuitState
	failures        int
	maxFailures     int
	timeout         time.Duration
	lastFailureTime time.Time
}

func newCircuitBreaker(maxFailures int, timeout time.Duration) *circuitBreaker {
	return &circuitBreaker{maxFailures: maxFailures, timeout: timeout}
}

func (cb *circuitBreaker) call(fn func() error) error {
	if !cb.canExecute() {
		return fmt.Errorf("transport/nats: circuit breaker open")
	}
	err := fn()
	cb.recordResult(err == nil)
	return err
}

func (cb *circuitBreaker) canExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(cb.lastFailureTime) > cb.timeout {
			cb.state = circuitHalfOpen
			return true
		}
		return false
	case circuitHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		if success {
			cb.failures = 0
		} else {
			cb.failures++
			cb.lastFailureTime = time.Now()
			if cb.failures >= cb.maxFailures {
				cb.state = circuitOpen
			}
		}
	case circuitHalfOpen:
		if success {
			cb.state = circuitClosed
			cb.failures = 0
		} else {
			cb.state = circuitOpen
			cb.lastFailureTime = time.Now()
		}
	}
}
