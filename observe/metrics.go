package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Call outcomes recorded against the pipeline metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeRecovered = "recovered"
)

// Metrics records pipeline call metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one recovered call with its outcome and duration.
	RecordCall(ctx context.Context, meta CallMeta, outcome string, duration time.Duration)

	// RecordFallback records a fallback invocation for an endpoint.
	RecordFallback(ctx context.Context, meta CallMeta)

	// RecordQueueDepth records the admission queue depth.
	RecordQueueDepth(ctx context.Context, depth int)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter         metric.Meter
	callCount     metric.Int64Counter
	fallbackCount metric.Int64Counter
	durationHist  metric.Float64Histogram
	queueDepth    metric.Int64Gauge
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	callCount, err := meter.Int64Counter(
		"pipeline.calls.total",
		metric.WithDescription("Total recovered calls by endpoint and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCount, err := meter.Int64Counter(
		"pipeline.fallbacks.total",
		metric.WithDescription("Total fallback invocations by endpoint"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"pipeline.call.duration_ms",
		metric.WithDescription("Recovered call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge(
		"pipeline.queue.depth",
		metric.WithDescription("Pending requests in the admission queue"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:         meter,
		callCount:     callCount,
		fallbackCount: fallbackCount,
		durationHist:  durationHist,
		queueDepth:    queueDepth,
	}, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, outcome string, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("pipeline.endpoint", meta.Endpoint),
		attribute.String("pipeline.outcome", outcome),
	)
	m.callCount.Add(ctx, 1, opt)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordFallback(ctx context.Context, meta CallMeta) {
	m.fallbackCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.endpoint", meta.Endpoint),
	))
}

func (m *metricsImpl) RecordQueueDepth(ctx context.Context, depth int) {
	m.queueDepth.Record(ctx, int64(depth))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordCall(ctx context.Context, meta CallMeta, outcome string, duration time.Duration) {
}
func (m *noopMetrics) RecordFallback(ctx context.Context, meta CallMeta) {}
func (m *noopMetrics) RecordQueueDepth(ctx context.Context, depth int)   {}

// NopMetrics returns a metrics implementation that discards everything.
func NopMetrics() Metrics {
	return &noopMetrics{}
}
