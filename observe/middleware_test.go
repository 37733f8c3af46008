package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testMiddleware(t *testing.T) (*Middleware, *tracetest.SpanRecorder, *sdkmetric.ManualReader, *bytes.Buffer) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	return NewMiddleware(NewTracer(tp.Tracer("test")), metrics, logger), recorder, reader, &buf
}

func TestMiddleware_WrapSuccess(t *testing.T) {
	mw, recorder, reader, buf := testMiddleware(t)

	wrapped := mw.Wrap(CallMeta{Endpoint: "payments"}, func(ctx context.Context) (any, error) {
		return "ok", nil
	})

	result, err := wrapped(context.Background())
	if err != nil {
		t.Fatalf("wrapped() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}

	if spans := recorder.Ended(); len(spans) != 1 {
		t.Errorf("ended spans = %d, want 1", len(spans))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	if findMetric(rm, "pipeline.calls.total") == nil {
		t.Error("pipeline.calls.total metric not recorded")
	}

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}
	if logEntry["msg"] != "call completed" {
		t.Errorf("log msg = %v, want call completed", logEntry["msg"])
	}
	if logEntry["component"] != "payments" {
		t.Errorf("log component = %v, want payments", logEntry["component"])
	}
}

func TestMiddleware_WrapFailure(t *testing.T) {
	mw, recorder, _, buf := testMiddleware(t)

	testErr := errors.New("upstream down")
	wrapped := mw.Wrap(CallMeta{Endpoint: "payments"}, func(ctx context.Context) (any, error) {
		return nil, testErr
	})

	_, err := wrapped(context.Background())
	if err != testErr {
		t.Errorf("wrapped() error = %v, want %v (unchanged)", err, testErr)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if len(spans[0].Events()) == 0 {
		t.Error("span has no events, want recorded error")
	}

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}
	if logEntry["msg"] != "call failed" {
		t.Errorf("log msg = %v, want call failed", logEntry["msg"])
	}
	if logEntry["error"] != "upstream down" {
		t.Errorf("log error = %v, want upstream down", logEntry["error"])
	}
}

func TestMiddlewareFromObserver_NilObserver(t *testing.T) {
	_, err := MiddlewareFromObserver(nil)
	if !errors.Is(err, ErrNilObserver) {
		t.Errorf("MiddlewareFromObserver(nil) error = %v, want ErrNilObserver", err)
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "opsguard"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}

	wrapped := mw.Wrap(CallMeta{Endpoint: "api"}, func(ctx context.Context) (any, error) {
		return 1, nil
	})
	if _, err := wrapped(context.Background()); err != nil {
		t.Errorf("wrapped() error = %v", err)
	}
}
