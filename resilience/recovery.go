package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/opsguard/health"
	"github.com/jonwraymond/opsguard/observe"
)

// Operation is a zero-argument asynchronous unit of work, e.g. an HTTP call
// made by a networking layer. The pipeline knows nothing about what it does.
type Operation func(ctx context.Context) (any, error)

// Config configures the orchestrator and its components.
type Config struct {
	// CircuitBreaker configures breakers created by the manager.
	CircuitBreaker BreakerConfig

	// Retry configures the retry executor.
	Retry RetryConfig

	// Queue configures the admission queue.
	Queue QueueConfig

	// GracefulDegradationDisabled turns off fallback substitution: terminal
	// errors propagate even when a fallback is supplied.
	// Default: false (fallbacks are used)
	GracefulDegradationDisabled bool

	// MonitoringDisabled turns off the circuit state polling loop, so
	// circuit-opened/circuit-closed events are never emitted.
	// Default: false (polling enabled)
	MonitoringDisabled bool

	// MonitorInterval is how often circuit states are polled for change
	// detection. Detection is polling-based, so event delivery lags a
	// state change by up to one interval.
	// Default: 5 seconds
	MonitorInterval time.Duration

	// Logger receives pipeline logs. Default: discard.
	Logger observe.Logger

	// Observer wires tracing and metrics for every recovered call.
	// Optional.
	Observer observe.Observer
}

// ExecOptions are per-call options for ExecuteWithRecovery.
type ExecOptions struct {
	// Priority is the admission tier. Default: PriorityNormal.
	Priority Priority

	// Fallback is invoked when the primary path fails terminally. Its
	// result is returned in place of the error (graceful degradation).
	Fallback Operation

	// QueueTimeout overrides the queue's default dispatch deadline.
	QueueTimeout time.Duration

	// SkipCircuitBreaker bypasses the breaker gate.
	SkipCircuitBreaker bool

	// SkipRetry bypasses the retry loop.
	SkipRetry bool

	// SkipQueue bypasses queue admission; the call runs immediately.
	SkipQueue bool
}

// Stats are the orchestrator's running counters.
type Stats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	RecoveredRequests  int64
	FallbacksUsed      int64

	// Availability is (successful + recovered) / total * 100. A call that
	// succeeded after internal retries counts as successful; recovered
	// means a fallback was invoked.
	Availability float64
}

// ComponentHealth is one component's contribution to the health status.
type ComponentHealth struct {
	Status  string
	Message string
}

// HealthStatus is the composite pipeline health report.
type HealthStatus struct {
	// Status is "healthy", "warning", or "critical".
	Status          string
	Components      map[string]ComponentHealth
	Recommendations []string
}

// Orchestrator composes the queue, retry executor, and breaker manager
// around caller-supplied operations, adding fallbacks, statistics, health
// reporting, and lifecycle events. It exclusively owns its manager and
// queue; nothing is shared across orchestrator instances.
type Orchestrator struct {
	breakers *BreakerManager
	queue    *Queue
	retry    atomic.Pointer[Retry]
	events   *emitter
	logger   observe.Logger
	tracer   observe.Tracer
	metrics  observe.Metrics
	agg      *health.Aggregator

	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	recovered  atomic.Int64
	fallbacks  atomic.Int64

	degradation     atomic.Bool // graceful degradation enabled
	monitorInterval atomic.Int64

	mu         sync.Mutex
	lastStates map[string]State

	monitoring  bool
	stopMonitor chan struct{}
	monitorDone chan struct{}
	closeOnce   sync.Once
}

// NewOrchestrator creates an orchestrator and starts its monitoring loop
// unless disabled. Call Close to release it.
func NewOrchestrator(config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	interval := config.MonitorInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	o := &Orchestrator{
		breakers:    NewBreakerManager(config.CircuitBreaker),
		queue:       NewQueue(config.Queue),
		logger:      logger,
		tracer:      observe.NewNoopTracer(),
		metrics:     observe.NopMetrics(),
		lastStates:  make(map[string]State),
		stopMonitor: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}
	o.retry.Store(NewRetry(config.Retry))
	o.events = newEmitter(logger)
	o.degradation.Store(!config.GracefulDegradationDisabled)
	o.monitorInterval.Store(int64(interval))

	if config.Observer != nil {
		o.tracer = observe.NewTracer(config.Observer.Tracer())
		if m, err := observe.NewMetrics(config.Observer.Meter()); err == nil {
			o.metrics = m
		} else {
			logger.Warn(context.Background(), "metrics setup failed",
				observe.Field{Key: "error", Value: err.Error()})
		}
	}

	o.agg = health.NewAggregator(health.AggregatorConfig{})
	o.agg.Register("circuit-breakers", NewBreakerChecker(o.breakers))
	o.agg.Register("queue", NewQueueChecker(o.queue))
	o.agg.Register("runtime", health.NewRuntimeChecker(health.RuntimeCheckerConfig{}))

	if config.MonitoringDisabled {
		close(o.monitorDone)
	} else {
		o.monitoring = true
		go o.monitor()
	}

	return o
}

// Breakers returns the orchestrator's breaker manager. The manager is owned
// by the orchestrator; callers may inspect or reset breakers through it.
func (o *Orchestrator) Breakers() *BreakerManager {
	return o.breakers
}

// Queue returns the orchestrator's admission queue.
func (o *Orchestrator) Queue() *Queue {
	return o.queue
}

// ExecuteWithRecovery runs the operation through queue admission, the retry
// loop, and the named circuit breaker, in that nesting order. Each layer is
// individually skippable. On terminal failure the fallback, if any, is
// invoked and its result substituted; otherwise the typed error propagates.
func (o *Orchestrator) ExecuteWithRecovery(ctx context.Context, name string, op Operation, opts ExecOptions) (any, error) {
	o.total.Add(1)
	start := time.Now()

	meta := observe.CallMeta{Endpoint: name, Priority: opts.Priority.String()}
	ctx, span := o.tracer.StartSpan(ctx, meta)

	// Compose inside out: breaker gate, then retry, then queue admission.
	call := op
	if !opts.SkipCircuitBreaker {
		inner := call
		call = func(ctx context.Context) (any, error) {
			return o.breakers.Execute(ctx, name, inner)
		}
	}
	if !opts.SkipRetry {
		retry := o.retry.Load()
		inner := call
		call = func(ctx context.Context) (any, error) {
			return retry.Execute(ctx, inner)
		}
	}

	var result any
	var err error
	if opts.SkipQueue {
		result, err = call(ctx)
	} else {
		result, err = o.queue.Enqueue(ctx, call, EnqueueOptions{
			Priority: opts.Priority,
			Timeout:  opts.QueueTimeout,
		})
	}

	o.metrics.RecordQueueDepth(ctx, o.queue.Stats().Depth)

	if err == nil {
		o.successful.Add(1)
		o.tracer.EndSpan(span, nil)
		o.metrics.RecordCall(ctx, meta, observe.OutcomeSuccess, time.Since(start))
		return result, nil
	}

	o.failed.Add(1)
	o.emitFailure(name, err)

	if opts.Fallback != nil && o.degradation.Load() {
		fbResult, fbErr := opts.Fallback(ctx)
		if fbErr == nil {
			o.recovered.Add(1)
			o.fallbacks.Add(1)
			o.events.emit(EventPayload{Event: EventFallbackTriggered, Name: name, Err: err})
			o.events.emit(EventPayload{Event: EventRecoverySuccessful, Name: name})
			o.logger.Info(ctx, "fallback substituted",
				observe.Field{Key: "endpoint", Value: name},
				observe.Field{Key: "cause", Value: err.Error()},
			)
			o.tracer.EndSpan(span, nil)
			o.metrics.RecordCall(ctx, meta, observe.OutcomeRecovered, time.Since(start))
			o.metrics.RecordFallback(ctx, meta)
			return fbResult, nil
		}
		o.logger.Warn(ctx, "fallback failed",
			observe.Field{Key: "endpoint", Value: name},
			observe.Field{Key: "error", Value: fbErr.Error()},
		)
	}

	o.tracer.EndSpan(span, err)
	o.metrics.RecordCall(ctx, meta, observe.OutcomeFailure, time.Since(start))
	return nil, err
}

func (o *Orchestrator) emitFailure(name string, err error) {
	var exhausted *RetryExhaustedError
	var timedOut *RetryTimeoutError
	var overflow *QueueOverflowError

	switch {
	case errors.As(err, &exhausted), errors.As(err, &timedOut):
		o.events.emit(EventPayload{Event: EventRetryExhausted, Name: name, Err: err})
	case errors.As(err, &overflow):
		o.events.emit(EventPayload{Event: EventQueueOverflow, Name: name, Err: err})
	}
}

// Subscribe registers a handler for the event and returns a subscription
// id. Handlers run synchronously in registration order.
func (o *Orchestrator) Subscribe(event Event, h Handler) int {
	return o.events.subscribe(event, h)
}

// Unsubscribe removes a previously registered handler.
func (o *Orchestrator) Unsubscribe(event Event, id int) {
	o.events.unsubscribe(event, id)
}

// Stats returns a snapshot of the orchestrator's counters.
func (o *Orchestrator) Stats() Stats {
	total := o.total.Load()
	successful := o.successful.Load()
	recovered := o.recovered.Load()

	availability := 100.0
	if total > 0 {
		availability = float64(successful+recovered) / float64(total) * 100
	}

	return Stats{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		FailedRequests:     o.failed.Load(),
		RecoveredRequests:  recovered,
		FallbacksUsed:      o.fallbacks.Load(),
		Availability:       availability,
	}
}

// ResetStats zeroes the orchestrator's counters. Component counters
// (breakers, queue) are unaffected.
func (o *Orchestrator) ResetStats() {
	o.total.Store(0)
	o.successful.Store(0)
	o.failed.Store(0)
	o.recovered.Store(0)
	o.fallbacks.Store(0)
}

// ConfigUpdate is a partial configuration change. Nil fields are left
// unchanged.
type ConfigUpdate struct {
	// Retry replaces the retry configuration for subsequent calls.
	Retry *RetryConfig

	// CircuitBreaker applies to breakers created after the update.
	CircuitBreaker *BreakerConfig

	// RateLimitPerSecond replaces the queue's throughput cap.
	RateLimitPerSecond *float64

	// GracefulDegradation toggles fallback substitution.
	GracefulDegradation *bool

	// MonitorInterval changes the circuit polling interval.
	MonitorInterval *time.Duration
}

// UpdateConfig applies a partial configuration change at runtime.
func (o *Orchestrator) UpdateConfig(update ConfigUpdate) {
	if update.Retry != nil {
		o.retry.Store(NewRetry(*update.Retry))
	}
	if update.CircuitBreaker != nil {
		o.breakers.SetConfig(*update.CircuitBreaker)
	}
	if update.RateLimitPerSecond != nil {
		o.queue.SetRateLimit(*update.RateLimitPerSecond)
	}
	if update.GracefulDegradation != nil {
		o.degradation.Store(*update.GracefulDegradation)
	}
	if update.MonitorInterval != nil && *update.MonitorInterval > 0 {
		o.monitorInterval.Store(int64(*update.MonitorInterval))
	}
}

// HealthStatus derives the pipeline's composite health from circuit
// availability, queue occupancy, and runtime pressure, with textual
// recommendations for whatever is degraded.
func (o *Orchestrator) HealthStatus(ctx context.Context) HealthStatus {
	results := o.agg.CheckAll(ctx)
	overall := o.agg.OverallStatus(results)

	components := make(map[string]ComponentHealth, len(results))
	for name, r := range results {
		components[name] = ComponentHealth{
			Status:  r.Status.String(),
			Message: r.Message,
		}
	}

	return HealthStatus{
		Status:          overall.String(),
		Components:      components,
		Recommendations: o.recommendations(),
	}
}

func (o *Orchestrator) recommendations() []string {
	var recs []string

	for name, bs := range o.breakers.AllStats() {
		switch bs.State {
		case StateOpen:
			recs = append(recs, fmt.Sprintf("circuit %q is open; check the upstream dependency before traffic resumes", name))
		case StateHalfOpen:
			recs = append(recs, fmt.Sprintf("circuit %q is probing recovery; avoid config changes until it settles", name))
		}
	}
	sort.Strings(recs)

	qh := o.queue.Health()
	switch qh.Status {
	case "critical":
		recs = append(recs, fmt.Sprintf("queue at capacity (%d/%d); raise maxConcurrent or shed load upstream", qh.Depth, qh.MaxSize))
	case "warning":
		recs = append(recs, fmt.Sprintf("queue under backpressure (%d/%d); consider raising the rate limit", qh.Depth, qh.MaxSize))
	}

	if stats := o.Stats(); stats.TotalRequests > 0 && stats.Availability < 90 {
		recs = append(recs, fmt.Sprintf("availability at %.1f%%; review retry budgets and add fallbacks", stats.Availability))
	}

	return recs
}

// Report renders a human-readable summary of the pipeline's counters,
// per-breaker state, and queue activity.
func (o *Orchestrator) Report() string {
	stats := o.Stats()
	qs := o.queue.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "Error Recovery Report\n")
	fmt.Fprintf(&b, "generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "requests: total=%d successful=%d failed=%d recovered=%d fallbacks=%d\n",
		stats.TotalRequests, stats.SuccessfulRequests, stats.FailedRequests,
		stats.RecoveredRequests, stats.FallbacksUsed)
	fmt.Fprintf(&b, "availability: %.1f%%\n", stats.Availability)

	if stats.TotalRequests > 0 {
		total := float64(stats.TotalRequests)
		fmt.Fprintf(&b, "trends: success=%.1f%% failure=%.1f%% recovery=%.1f%%\n",
			float64(stats.SuccessfulRequests)/total*100,
			float64(stats.FailedRequests)/total*100,
			float64(stats.RecoveredRequests)/total*100)
	}

	fmt.Fprintf(&b, "\ncircuit breakers:\n")
	all := o.breakers.AllStats()
	if len(all) == 0 {
		fmt.Fprintf(&b, "  (none registered)\n")
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		bs := all[name]
		fmt.Fprintf(&b, "  %s: state=%s failures=%d calls=%d changes=%d availability=%.1f%%\n",
			name, bs.State, bs.FailureCount, bs.TotalCalls, bs.StateChanges, bs.Availability)
	}

	fmt.Fprintf(&b, "\nqueue: depth=%d active=%d completed=%d rejected=%d expired=%d throughput=%.2f/s\n",
		qs.Depth, qs.Active, qs.Completed, qs.Rejected, qs.Expired, qs.Throughput)

	return b.String()
}

// monitor polls circuit states on a fixed interval and emits
// circuit-opened / circuit-closed events on transitions. Detection is
// deliberately pull-based; events lag the transition by up to one interval.
func (o *Orchestrator) monitor() {
	defer close(o.monitorDone)

	for {
		timer := time.NewTimer(time.Duration(o.monitorInterval.Load()))
		select {
		case <-o.stopMonitor:
			timer.Stop()
			return
		case <-timer.C:
			o.pollCircuits()
		}
	}
}

func (o *Orchestrator) pollCircuits() {
	stats := o.breakers.AllStats()

	var emissions []EventPayload
	o.mu.Lock()
	for name, bs := range stats {
		prev, seen := o.lastStates[name]
		switch {
		case bs.State == StateOpen && (!seen || prev != StateOpen):
			emissions = append(emissions, EventPayload{Event: EventCircuitOpened, Name: name})
		case bs.State == StateClosed && seen && prev != StateClosed:
			emissions = append(emissions, EventPayload{Event: EventCircuitClosed, Name: name})
		}
		o.lastStates[name] = bs.State
	}
	o.mu.Unlock()

	for _, payload := range emissions {
		o.logger.Info(context.Background(), "circuit state change detected",
			observe.Field{Key: "endpoint", Value: payload.Name},
			observe.Field{Key: "event", Value: string(payload.Event)},
		)
		o.events.emit(payload)
	}
}

// Close stops the monitoring loop and closes the queue. In-flight
// operations run to completion; pending admissions are rejected.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.monitoring {
			close(o.stopMonitor)
		}
		<-o.monitorDone
		o.queue.Close()
	})
}
