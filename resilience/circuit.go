package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is rejecting all requests.
	StateOpen
	// StateHalfOpen means the circuit is admitting trial requests to test
	// whether the dependency recovered.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within MonitoringPeriod
	// that opens the circuit.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before admitting
	// trial requests.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit.
	// Default: 2
	SuccessThreshold int

	// MonitoringPeriod is the rolling window over which failures are
	// counted. Failures older than the window no longer count toward the
	// threshold.
	// Default: 60 seconds
	MonitoringPeriod time.Duration

	// HalfOpenMaxCalls is the maximum number of concurrent trial requests
	// admitted in half-open state.
	// Default: 3
	HalfOpenMaxCalls int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(name string, from, to State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.MonitoringPeriod <= 0 {
		c.MonitoringPeriod = 60 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	return c
}

// CircuitBreaker is a per-endpoint failure gate. Transition decisions are
// serialized under a per-breaker mutex; the guarded operation itself runs
// outside the lock and may overlap with other calls on the same name.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu              sync.Mutex
	state           State
	failureTimes    []time.Time // rolling failure window, oldest first
	successCount    int         // consecutive successes while half-open
	halfOpenCalls   int         // in-flight trial requests
	lastFailure     time.Time
	lastStateChange time.Time

	totalCalls    int64
	totalFailures int64
	stateChanges  int64
}

// NewCircuitBreaker creates a circuit breaker with the given name and config.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:            name,
		config:          config.withDefaults(),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs the operation through the circuit breaker. When the circuit
// is open the operation is never invoked and a *CircuitOpenError is
// returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (any, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	cb.afterCall(err)
	return result, err
}

// State returns the current circuit state, applying the open-to-half-open
// transition if the recovery timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked(time.Now())
}

// Reset forces the breaker back to closed state and clears all counters
// except the lifetime totals.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	old := cb.state
	cb.state = StateClosed
	cb.failureTimes = nil
	cb.successCount = 0
	cb.halfOpenCalls = 0

	if old != StateClosed {
		cb.lastStateChange = time.Now()
		cb.stateChanges++
		cb.notify(old, StateClosed)
	}
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.currentStateLocked(now) {
	case StateOpen:
		retryAfter := cb.config.RecoveryTimeout - now.Sub(cb.lastStateChange)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &CircuitOpenError{Name: cb.name, RetryAfter: retryAfter}

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return &CircuitOpenError{Name: cb.name}
		}
		cb.halfOpenCalls++
	}

	cb.totalCalls++
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	failed := err != nil

	switch cb.state {
	case StateClosed:
		if failed {
			cb.totalFailures++
			cb.lastFailure = now
			cb.recordFailureLocked(now)
			if len(cb.failureTimes) >= cb.config.FailureThreshold {
				cb.transitionLocked(StateOpen, now)
			}
		}

	case StateHalfOpen:
		cb.halfOpenCalls--
		if failed {
			// A single trial failure re-opens the circuit and restarts
			// the recovery timer.
			cb.totalFailures++
			cb.lastFailure = now
			cb.transitionLocked(StateOpen, now)
		} else {
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.failureTimes = nil
				cb.transitionLocked(StateClosed, now)
			}
		}

	case StateOpen:
		// A call admitted while half-open may complete after another
		// trial already re-opened the circuit. Only the failure totals
		// are updated.
		if failed {
			cb.totalFailures++
			cb.lastFailure = now
		}
	}
}

// recordFailureLocked appends a failure and rolls the monitoring window
// forward, dropping failures that aged out.
func (cb *CircuitBreaker) recordFailureLocked(now time.Time) {
	cb.failureTimes = append(cb.failureTimes, now)
	cutoff := now.Add(-cb.config.MonitoringPeriod)
	i := 0
	for i < len(cb.failureTimes) && cb.failureTimes[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		cb.failureTimes = cb.failureTimes[i:]
	}
}

func (cb *CircuitBreaker) currentStateLocked(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.lastStateChange) >= cb.config.RecoveryTimeout {
		cb.successCount = 0
		cb.halfOpenCalls = 0
		cb.transitionLocked(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.lastStateChange = now
	cb.stateChanges++
	if to == StateHalfOpen {
		cb.successCount = 0
		cb.halfOpenCalls = 0
	}
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}

// Stats returns a snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	availability := 100.0
	if cb.totalCalls > 0 {
		availability = float64(cb.totalCalls-cb.totalFailures) / float64(cb.totalCalls) * 100
	}

	return BreakerStats{
		Name:            cb.name,
		State:           cb.currentStateLocked(time.Now()),
		FailureCount:    len(cb.failureTimes),
		SuccessCount:    cb.successCount,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		StateChanges:    cb.stateChanges,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.lastStateChange,
		Availability:    availability,
	}
}

// BreakerStats contains circuit breaker statistics.
type BreakerStats struct {
	Name            string
	State           State
	FailureCount    int
	SuccessCount    int
	TotalCalls      int64
	TotalFailures   int64
	StateChanges    int64
	LastFailure     time.Time
	LastStateChange time.Time
	Availability    float64
}
