// Package resilience wraps arbitrary outbound operations with admission
// control and failure recovery.
//
// The pipeline composes three independent mechanisms around a
// caller-supplied operation:
//
//   - Circuit Breaker: a per-endpoint failure gate that stops invoking a
//     failing dependency until a cool-down elapses and trial calls succeed.
//     Breakers are created lazily by name through a BreakerManager.
//
//   - Retry: bounded attempts with exponential backoff, jitter, error
//     classification, and an overall time budget. The final error carries
//     the full attempt history.
//
//   - Queue: a bounded, priority-ordered admission queue enforcing a
//     concurrency limit, a token-bucket throughput cap, and backpressure
//     shedding.
//
// The Orchestrator ties them together and adds fallback-based graceful
// degradation, running statistics, health reporting, and lifecycle events.
//
// # Usage
//
//	o := resilience.NewOrchestrator(resilience.Config{})
//	defer o.Close()
//
//	result, err := o.ExecuteWithRecovery(ctx, "billing-api",
//	    func(ctx context.Context) (any, error) {
//	        return callBillingAPI(ctx)
//	    },
//	    resilience.ExecOptions{
//	        Priority: resilience.PriorityHigh,
//	        Fallback: func(ctx context.Context) (any, error) {
//	            return readCachedInvoice(ctx)
//	        },
//	    },
//	)
//
// A caller either receives a value (its own success, or a silently
// substituted fallback) or one of five typed errors it can branch on with
// errors.As: *CircuitOpenError, *RetryExhaustedError, *RetryTimeoutError,
// *QueueOverflowError, *QueueTimeoutError.
//
// Each mechanism can also be used on its own: NewCircuitBreaker, NewRetry,
// and NewQueue are independent and know nothing about each other. All state
// is process-local; a restart starts clean.
package resilience
