package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fastConfig keeps retries and monitoring cheap in tests.
func fastConfig() Config {
	return Config{
		CircuitBreaker:     BreakerConfig{FailureThreshold: 100},
		Retry:              RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, NoJitter: true},
		Queue:              QueueConfig{},
		MonitoringDisabled: true,
	}
}

func TestOrchestrator_Success(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	result, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteWithRecovery() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}

	stats := o.Stats()
	if stats.TotalRequests != 1 || stats.SuccessfulRequests != 1 {
		t.Errorf("stats = %+v, want 1 total, 1 successful", stats)
	}
	if stats.Availability != 100.0 {
		t.Errorf("Availability = %.1f, want 100.0", stats.Availability)
	}
}

func TestOrchestrator_FallbackSubstitutes(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	var fallbackEvents, recoveryEvents []EventPayload
	o.Subscribe(EventFallbackTriggered, func(p EventPayload) {
		fallbackEvents = append(fallbackEvents, p)
	})
	o.Subscribe(EventRecoverySuccessful, func(p EventPayload) {
		recoveryEvents = append(recoveryEvents, p)
	})

	result, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("upstream down")
		}, ExecOptions{
			Fallback: func(ctx context.Context) (any, error) {
				return "cached", nil
			},
		})
	if err != nil {
		t.Fatalf("ExecuteWithRecovery() error = %v, want fallback substitution", err)
	}
	if result != "cached" {
		t.Errorf("result = %v, want cached", result)
	}

	stats := o.Stats()
	if stats.RecoveredRequests != 1 {
		t.Errorf("RecoveredRequests = %d, want 1", stats.RecoveredRequests)
	}
	if stats.FallbacksUsed != 1 {
		t.Errorf("FallbacksUsed = %d, want 1", stats.FallbacksUsed)
	}
	if stats.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", stats.FailedRequests)
	}

	if len(fallbackEvents) != 1 || fallbackEvents[0].Name != "api" {
		t.Errorf("fallback-triggered events = %v, want one for api", fallbackEvents)
	}
	if len(recoveryEvents) != 1 {
		t.Errorf("recovery-successful events = %v, want one", recoveryEvents)
	}
}

func TestOrchestrator_FallbackFailureReturnsOriginalError(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	primaryErr := errors.New("primary down")
	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, primaryErr
		}, ExecOptions{
			Fallback: func(ctx context.Context) (any, error) {
				return nil, errors.New("fallback also down")
			},
		})

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want the primary path's *RetryExhaustedError", err)
	}
	if !errors.Is(err, primaryErr) {
		t.Error("errors.Is(err, primaryErr) = false, want true")
	}

	stats := o.Stats()
	if stats.RecoveredRequests != 0 || stats.FallbacksUsed != 0 {
		t.Errorf("stats = %+v, want no recovery recorded", stats)
	}
}

func TestOrchestrator_GracefulDegradationDisabled(t *testing.T) {
	cfg := fastConfig()
	cfg.GracefulDegradationDisabled = true
	o := NewOrchestrator(cfg)
	defer o.Close()

	fallbackCalled := false
	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{
			Fallback: func(ctx context.Context) (any, error) {
				fallbackCalled = true
				return "cached", nil
			},
		})

	if err == nil {
		t.Fatal("error = nil, want failure to propagate")
	}
	if fallbackCalled {
		t.Error("fallback invoked despite degradation being disabled")
	}
}

func TestOrchestrator_Availability(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	ok := func(ctx context.Context) (any, error) { return "ok", nil }
	fail := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	cached := func(ctx context.Context) (any, error) { return "cached", nil }

	for i := 0; i < 7; i++ {
		if _, err := o.ExecuteWithRecovery(context.Background(), "api", ok, ExecOptions{}); err != nil {
			t.Fatalf("ExecuteWithRecovery() error = %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := o.ExecuteWithRecovery(context.Background(), "api", fail, ExecOptions{Fallback: cached}); err != nil {
			t.Fatalf("ExecuteWithRecovery() with fallback error = %v", err)
		}
	}
	if _, err := o.ExecuteWithRecovery(context.Background(), "api", fail, ExecOptions{}); err == nil {
		t.Fatal("ExecuteWithRecovery() error = nil, want failure")
	}

	stats := o.Stats()
	if stats.TotalRequests != 10 {
		t.Errorf("TotalRequests = %d, want 10", stats.TotalRequests)
	}
	if stats.SuccessfulRequests != 7 {
		t.Errorf("SuccessfulRequests = %d, want 7", stats.SuccessfulRequests)
	}
	if stats.RecoveredRequests != 2 {
		t.Errorf("RecoveredRequests = %d, want 2", stats.RecoveredRequests)
	}
	if stats.Availability != 90.0 {
		t.Errorf("Availability = %.1f, want 90.0", stats.Availability)
	}
}

func TestOrchestrator_SkipCircuitBreaker(t *testing.T) {
	cfg := fastConfig()
	cfg.CircuitBreaker = BreakerConfig{FailureThreshold: 1}
	o := NewOrchestrator(cfg)
	defer o.Close()

	// Open the breaker for this endpoint.
	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{SkipRetry: true})

	// Gated path rejects.
	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{SkipRetry: true})
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("error = %v, want *CircuitOpenError", err)
	}

	// The bypass runs the operation regardless.
	result, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{SkipRetry: true, SkipCircuitBreaker: true})
	if err != nil {
		t.Fatalf("ExecuteWithRecovery() with bypass error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
}

func TestOrchestrator_SkipRetry(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	calls := 0
	testErr := errors.New("boom")
	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			calls++
			return nil, testErr
		}, ExecOptions{SkipRetry: true})

	if calls != 1 {
		t.Errorf("operation invocations = %d, want 1", calls)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("error = %v, want the operation's own error", err)
	}
}

func TestOrchestrator_RetryExhaustedEvent(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	var events []EventPayload
	o.Subscribe(EventRetryExhausted, func(p EventPayload) {
		events = append(events, p)
	})

	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{})

	if len(events) != 1 || events[0].Name != "api" {
		t.Errorf("retry-exhausted events = %v, want one for api", events)
	}
}

func TestOrchestrator_QueueOverflowEvent(t *testing.T) {
	cfg := fastConfig()
	cfg.Queue = QueueConfig{MaxSize: -1}
	o := NewOrchestrator(cfg)
	defer o.Close()

	var events []EventPayload
	o.Subscribe(EventQueueOverflow, func(p EventPayload) {
		events = append(events, p)
	})

	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			t.Error("operation invoked with admission disabled")
			return nil, nil
		}, ExecOptions{})

	var overflow *QueueOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("error = %v, want *QueueOverflowError", err)
	}
	if len(events) != 1 {
		t.Errorf("queue-overflow events = %v, want one", events)
	}
}

func TestOrchestrator_SkipQueueBypassesAdmission(t *testing.T) {
	cfg := fastConfig()
	cfg.Queue = QueueConfig{MaxSize: -1}
	o := NewOrchestrator(cfg)
	defer o.Close()

	result, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{SkipQueue: true})
	if err != nil {
		t.Fatalf("ExecuteWithRecovery() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
}

func TestOrchestrator_Unsubscribe(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	calls := 0
	id := o.Subscribe(EventRetryExhausted, func(p EventPayload) {
		calls++
	})
	o.Unsubscribe(EventRetryExhausted, id)

	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{})

	if calls != 0 {
		t.Errorf("handler calls after unsubscribe = %d, want 0", calls)
	}
}

func TestOrchestrator_ResetStats(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{})
	o.ResetStats()

	stats := o.Stats()
	if stats.TotalRequests != 0 || stats.SuccessfulRequests != 0 {
		t.Errorf("stats after reset = %+v, want zeroed", stats)
	}
	if stats.Availability != 100.0 {
		t.Errorf("Availability after reset = %.1f, want 100.0", stats.Availability)
	}
}

func TestOrchestrator_UpdateConfig(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	newRetry := RetryConfig{MaxAttempts: 7, BaseDelay: time.Millisecond, NoJitter: true}
	newRate := 250.0
	disabled := false
	o.UpdateConfig(ConfigUpdate{
		Retry:               &newRetry,
		RateLimitPerSecond:  &newRate,
		GracefulDegradation: &disabled,
	})

	if got := o.retry.Load().Config().MaxAttempts; got != 7 {
		t.Errorf("retry MaxAttempts after update = %d, want 7", got)
	}
	if got := float64(o.queue.limiter.Limit()); got != 250 {
		t.Errorf("queue rate limit after update = %v, want 250", got)
	}

	// Degradation was switched off: fallbacks are ignored.
	fallbackCalled := false
	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{
			SkipRetry: true,
			Fallback: func(ctx context.Context) (any, error) {
				fallbackCalled = true
				return "cached", nil
			},
		})
	if err == nil {
		t.Fatal("error = nil, want failure to propagate")
	}
	if fallbackCalled {
		t.Error("fallback invoked after degradation was disabled")
	}
}

func TestOrchestrator_MonitorEmitsCircuitEvents(t *testing.T) {
	o := NewOrchestrator(Config{
		CircuitBreaker:  BreakerConfig{FailureThreshold: 1},
		Retry:           RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
		MonitorInterval: 10 * time.Millisecond,
	})
	defer o.Close()

	opened := make(chan EventPayload, 1)
	closed := make(chan EventPayload, 1)
	o.Subscribe(EventCircuitOpened, func(p EventPayload) {
		select {
		case opened <- p:
		default:
		}
	})
	o.Subscribe(EventCircuitClosed, func(p EventPayload) {
		select {
		case closed <- p:
		default:
		}
	})

	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{SkipRetry: true})

	select {
	case p := <-opened:
		if p.Name != "api" {
			t.Errorf("circuit-opened Name = %q, want api", p.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no circuit-opened event within 2s")
	}

	o.Breakers().Reset("api")

	select {
	case p := <-closed:
		if p.Name != "api" {
			t.Errorf("circuit-closed Name = %q, want api", p.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no circuit-closed event within 2s")
	}
}

func TestOrchestrator_HealthStatus(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{})

	hs := o.HealthStatus(context.Background())
	if hs.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", hs.Status)
	}
	for _, component := range []string{"circuit-breakers", "queue", "runtime"} {
		if _, ok := hs.Components[component]; !ok {
			t.Errorf("Components missing %q", component)
		}
	}
	if len(hs.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want none while healthy", hs.Recommendations)
	}
}

func TestOrchestrator_HealthStatusDegraded(t *testing.T) {
	cfg := fastConfig()
	cfg.CircuitBreaker = BreakerConfig{FailureThreshold: 1}
	o := NewOrchestrator(cfg)
	defer o.Close()

	_, _ = o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}, ExecOptions{SkipRetry: true})

	hs := o.HealthStatus(context.Background())
	if hs.Status == "healthy" {
		t.Errorf("Status = %q, want degraded with an open circuit", hs.Status)
	}
	found := false
	for _, rec := range hs.Recommendations {
		if strings.Contains(rec, "api") {
			found = true
		}
	}
	if !found {
		t.Errorf("Recommendations = %v, want one naming the open circuit", hs.Recommendations)
	}
}

func TestOrchestrator_Report(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	_, _ = o.ExecuteWithRecovery(context.Background(), "payments",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{})

	report := o.Report()
	for _, want := range []string{"Error Recovery Report", "availability", "payments", "queue:"} {
		if !strings.Contains(report, want) {
			t.Errorf("Report() missing %q:\n%s", want, report)
		}
	}
}

func TestOrchestrator_ConcurrentExecute(t *testing.T) {
	o := NewOrchestrator(fastConfig())
	defer o.Close()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.ExecuteWithRecovery(context.Background(), "api",
				func(ctx context.Context) (any, error) {
					return "ok", nil
				}, ExecOptions{})
		}()
	}
	wg.Wait()

	if got := o.Stats().TotalRequests; got != 30 {
		t.Errorf("TotalRequests = %d, want 30", got)
	}
}

func TestOrchestrator_CloseIsIdempotent(t *testing.T) {
	o := NewOrchestrator(fastConfig())

	o.Close()
	o.Close()

	_, err := o.ExecuteWithRecovery(context.Background(), "api",
		func(ctx context.Context) (any, error) {
			return "ok", nil
		}, ExecOptions{})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("ExecuteWithRecovery() after Close = %v, want ErrQueueClosed", err)
	}
}
