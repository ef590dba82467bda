package governance

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is in the open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed indicates the circuit is closed and invocations are allowed.
	StateClosed CircuitBreakerState = "closed"
	// StateOpen indicates the circuit is open and invocations are rejected.
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen indicates the circuit is probing whether the stage has recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig defines thresholds for circuit breaking.
type CircuitBreakerConfig struct {
	// MaxFailures is the consecutive-failure threshold before opening.
	MaxFailures int
	// Cooldown is how long the circuit stays open before half-open probing.
	Cooldown time.Duration
	// MaxHalfOpenProbes is the number of probe invocations allowed in
	// half-open state before forcing a decision.
	MaxHalfOpenProbes int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:       5,
		Cooldown:          30 * time.Second,
		MaxHalfOpenProbes: 3,
	}
}

// CircuitBreaker guards repeatedly failing stages. Unlike a service-level
// breaker there is no window accounting here: stage sets are small and
// consecutive-failure counting with half-open probes covers them.
type CircuitBreaker struct {
	mu                   sync.Mutex
	state                CircuitBreakerState
	config               CircuitBreakerConfig
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenProbes       int
	openUntil            time.Time
}

// NewCircuitBreaker creates a circuit breaker with the provided configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultCircuitBreakerConfig().MaxFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCircuitBreakerConfig().Cooldown
	}
	if config.MaxHalfOpenProbes <= 0 {
		config.MaxHalfOpenProbes = DefaultCircuitBreakerConfig().MaxHalfOpenProbes
	}
	return &CircuitBreaker{state: StateClosed, config: config}
}

// Allow reports whether an invocation may proceed, transitioning from open
// to half-open once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.After(cb.openUntil) {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenProbes++
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenProbes < cb.config.MaxHalfOpenProbes {
			cb.halfOpenProbes++
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// Record feeds the outcome of an allowed invocation back into the breaker.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
	} else {
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
	}

	switch cb.state {
	case StateHalfOpen:
		if !success {
			cb.transitionLocked(StateOpen)
			return
		}
		if cb.consecutiveSuccesses >= cb.config.MaxHalfOpenProbes {
			cb.transitionLocked(StateClosed)
		}
	case StateClosed:
		if !success && cb.consecutiveFailures >= cb.config.MaxFailures {
			cb.transitionLocked(StateOpen)
		}
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset returns the breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}

func (cb *CircuitBreaker) transitionLocked(next CircuitBreakerState) {
	if cb.state == next {
		return
	}
	cb.state = next
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenProbes = 0
	if next == StateOpen {
		cb.openUntil = time.Now().Add(cb.config.Cooldown)
	} else {
		cb.openUntil = time.Time{}
	}
}

// CircuitBreakerManager keys breakers by stage, creating them on demand.
type CircuitBreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerManager creates a new circuit breaker manager.
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{breakers: make(map[string]*CircuitBreaker)}
}

// Get retrieves the circuit breaker for a key, creating one with defaults if needed.
func (m *CircuitBreakerManager) Get(key string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[key]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[key]; ok {
		return cb
	}
	cb = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	m.breakers[key] = cb
	return cb
}

// ResetAll resets every breaker to the closed state.
func (m *CircuitBreakerManager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cb := range m.breakers {
		cb.Reset()
	}
}
