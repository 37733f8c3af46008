package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// ErrAttemptTimeout marks a single attempt that did not respond before its
// deadline. It is always considered retryable.
var ErrAttemptTimeout = errors.New("resilience: attempt timed out")

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// Jitter perturbs each delay by a uniform factor in [-0.25, +0.25] to
	// prevent synchronized retry storms.
	// Default: true (use NoJitter to disable)
	Jitter bool

	// NoJitter disables jitter. Kept separate from Jitter so the zero
	// config keeps jitter enabled.
	NoJitter bool

	// RetryableErrors is a list of substrings matched case-insensitively
	// against error messages. Errors that match none of them propagate
	// after a single attempt. An empty list retries every error.
	RetryableErrors []string

	// Timeout is the overall budget across all attempts and delays.
	// Default: 2 minutes
	Timeout time.Duration

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	c.Jitter = !c.NoJitter
	return c
}

// DefaultRetryableErrors matches the transient failure modes of typical
// outbound calls.
var DefaultRetryableErrors = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"too many requests",
	"EOF",
}

// Attempt records a single invocation inside a retry loop.
type Attempt struct {
	// Number is the 1-based attempt number.
	Number int

	// Delay is the backoff scheduled after this attempt. Zero for the
	// final attempt.
	Delay time.Duration

	// Elapsed is the total time since the retry loop started, measured
	// when the attempt finished.
	Elapsed time.Duration

	// Err is the attempt's error, nil on success.
	Err error

	// Timestamp is when the attempt started.
	Timestamp time.Time
}

// Retry executes operations with bounded attempts, exponential backoff, and
// error classification.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry executor.
func NewRetry(config RetryConfig) *Retry {
	return &Retry{config: config.withDefaults()}
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Execute runs the operation with retry. On success the collected attempt
// history is discarded. A non-retryable error propagates unchanged after
// exactly one attempt. Exhausting the attempts yields *RetryExhaustedError;
// exceeding the overall budget yields *RetryTimeoutError.
func (r *Retry) Execute(ctx context.Context, op Operation) (any, error) {
	start := time.Now()
	var attempts []Attempt

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		remaining := r.config.Timeout - time.Since(start)
		if remaining <= 0 {
			return nil, &RetryTimeoutError{
				Attempts: attempts,
				Elapsed:  time.Since(start),
				Err:      lastErr(attempts),
			}
		}

		attemptStart := time.Now()
		result, err := r.runAttempt(ctx, op, remaining)
		if err == nil {
			return result, nil
		}

		record := Attempt{
			Number:    attempt,
			Elapsed:   time.Since(start),
			Err:       err,
			Timestamp: attemptStart,
		}

		if !r.isRetryable(err) {
			return nil, err
		}

		if attempt >= r.config.MaxAttempts {
			attempts = append(attempts, record)
			return nil, &RetryExhaustedError{Attempts: attempts, Err: err}
		}

		delay := r.backoff(attempt)
		record.Delay = delay
		attempts = append(attempts, record)

		if time.Since(start)+delay > r.config.Timeout {
			return nil, &RetryTimeoutError{
				Attempts: attempts,
				Elapsed:  time.Since(start),
				Err:      err,
			}
		}

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	// Unreachable: the loop always returns from the last attempt.
	return nil, &RetryExhaustedError{Attempts: attempts, Err: lastErr(attempts)}
}

// runAttempt races the operation against the attempt deadline. A
// non-responding operation is abandoned and counted as a failure; its
// goroutine is left to finish on its own (cooperative cancellation via ctx).
func (r *Retry) runAttempt(ctx context.Context, op Operation, deadline time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := op(ctx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrAttemptTimeout
		}
		return nil, ctx.Err()
	}
}

func (r *Retry) isRetryable(err error) bool {
	if errors.Is(err, ErrAttemptTimeout) {
		return true
	}
	if len(r.config.RetryableErrors) == 0 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range r.config.RetryableErrors {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// backoff computes the delay after attempt k:
// min(maxDelay, baseDelay * multiplier^(k-1)), optionally perturbed by a
// uniform jitter factor in [-0.25, +0.25], floored to a whole millisecond
// and clamped to >= 0.
func (r *Retry) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.BaseDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		factor := rand.Float64()*0.5 - 0.25
		ms := math.Floor(float64(delay.Milliseconds()) * (1 + factor))
		if ms < 0 {
			ms = 0
		}
		delay = time.Duration(ms) * time.Millisecond
	}

	return delay
}

func lastErr(attempts []Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	return attempts[len(attempts)-1].Err
}
