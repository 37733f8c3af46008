package observe

import (
	"context"
	"time"
)

// OperationFunc is the signature for the asynchronous units of work the
// pipeline executes.
type OperationFunc func(ctx context.Context) (any, error)

// Middleware wraps operation execution with observability (tracing,
// metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe OperationFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped function are recorded and propagated unchanged.
//   - Ownership: Result values are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps an operation with tracing, metrics, and logging for the given
// call metadata.
func (m *Middleware) Wrap(meta CallMeta, fn OperationFunc) OperationFunc {
	return func(ctx context.Context) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)

		start := time.Now()
		result, err := fn(ctx)
		duration := time.Since(start)

		m.tracer.EndSpan(span, err)

		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeFailure
		}
		m.metrics.RecordCall(ctx, meta, outcome, duration)

		logger := m.logger.WithComponent(meta.Endpoint)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Error(ctx, "call failed", fields...)
		} else {
			logger.Info(ctx, "call completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
