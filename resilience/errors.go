package resilience

import (
	"fmt"
	"time"
)

// CircuitOpenError is returned when a breaker rejects a call without
// invoking the operation.
type CircuitOpenError struct {
	// Name is the breaker that rejected the call.
	Name string

	// RetryAfter is how long until the breaker will admit a trial call.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit %q is open (retry after %s)", e.Name, e.RetryAfter)
}

// RetryExhaustedError is returned when all retry attempts failed on
// retryable errors. It carries the last error and the full attempt history.
type RetryExhaustedError struct {
	// Attempts is the ordered per-attempt record, one entry per invocation.
	Attempts []Attempt

	// Err is the error from the final attempt.
	Err error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retries exhausted after %d attempts: %v", len(e.Attempts), e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// RetryTimeoutError is returned when the overall retry budget would be
// exceeded before the attempts were exhausted.
type RetryTimeoutError struct {
	// Attempts is the ordered per-attempt record up to the abort point.
	Attempts []Attempt

	// Elapsed is the time spent before aborting.
	Elapsed time.Duration

	// Err is the error from the last completed attempt.
	Err error
}

func (e *RetryTimeoutError) Error() string {
	return fmt.Sprintf("resilience: retry budget exceeded after %s (%d attempts): %v", e.Elapsed, len(e.Attempts), e.Err)
}

func (e *RetryTimeoutError) Unwrap() error {
	return e.Err
}

// QueueOverflowError is returned when the queue is at capacity at enqueue
// time, or when a pending item is shed under backpressure. The operation is
// never invoked.
type QueueOverflowError struct {
	// Size is the queue depth observed at rejection time.
	Size int

	// MaxSize is the configured capacity.
	MaxSize int

	// Shed reports whether the item was admitted and later evicted to make
	// room for a higher-priority admission.
	Shed bool
}

func (e *QueueOverflowError) Error() string {
	if e.Shed {
		return fmt.Sprintf("resilience: request shed under backpressure (depth %d/%d)", e.Size, e.MaxSize)
	}
	return fmt.Sprintf("resilience: queue overflow (depth %d/%d)", e.Size, e.MaxSize)
}

// QueueTimeoutError is returned when a queued request's deadline passed
// before it could be dispatched.
type QueueTimeoutError struct {
	// ID is the queued request's identifier.
	ID string

	// Waited is how long the request sat in the queue.
	Waited time.Duration
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("resilience: request %s expired after waiting %s", e.ID, e.Waited)
}
