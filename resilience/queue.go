package resilience

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrQueueClosed is returned for requests pending or arriving after Close.
var ErrQueueClosed = errors.New("resilience: queue closed")

// Priority orders queued requests. Higher values dispatch first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// QueueConfig configures the request queue.
type QueueConfig struct {
	// MaxSize is the maximum number of pending requests. Enqueueing beyond
	// it rejects immediately. A negative value disables admission entirely:
	// every enqueue rejects.
	// Default: 100
	MaxSize int

	// MaxConcurrent is the maximum number of operations running at once.
	// Default: 10
	MaxConcurrent int

	// Timeout is the default time a request may wait for dispatch before
	// its deadline expires. Overridable per request.
	// Default: 30 seconds
	Timeout time.Duration

	// PriorityDisabled makes the queue strictly FIFO, ignoring priorities.
	// Default: false (priority ordering enabled)
	PriorityDisabled bool

	// RateLimitPerSecond caps dispatch throughput, token-bucket style.
	// Default: 50
	RateLimitPerSecond float64

	// BackpressureThreshold is the depth at which the queue may shed the
	// lowest-priority pending request to admit a higher-priority one.
	// Default: 80% of MaxSize
	BackpressureThreshold int

	// RetryFailedRequests re-enqueues a failed operation once at the same
	// priority before resolving with its error.
	// Default: false
	RetryFailedRequests bool
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.MaxSize == 0 {
		c.MaxSize = 100
	}
	if c.MaxSize < 0 {
		c.MaxSize = -1
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 50
	}
	if c.MaxSize > 0 && (c.BackpressureThreshold <= 0 || c.BackpressureThreshold > c.MaxSize) {
		c.BackpressureThreshold = c.MaxSize * 80 / 100
		if c.BackpressureThreshold <= 0 {
			c.BackpressureThreshold = c.MaxSize
		}
	}
	return c
}

// EnqueueOptions are per-request queue options.
type EnqueueOptions struct {
	// Priority is the admission tier. Default: PriorityNormal.
	Priority Priority

	// Timeout overrides the queue's default dispatch deadline.
	Timeout time.Duration
}

type outcome struct {
	result any
	err    error
}

// queuedRequest is one pending admission. It leaves the heap either by
// dispatch or by rejection (overflow, shedding, deadline, close).
type queuedRequest struct {
	id          string
	priority    Priority
	seq         uint64
	enqueueTime time.Time
	deadline    time.Time
	op          Operation
	ctx         context.Context // caller context, passed through on dispatch
	done        chan outcome
	requeued    bool
	index       int // heap index, -1 once removed
}

func (r *queuedRequest) resolve(result any, err error) {
	r.done <- outcome{result, err}
}

// requestHeap orders by priority tier descending, then FIFO by sequence
// within a tier. With fifo set, sequence alone decides.
type requestHeap struct {
	items []*queuedRequest
	fifo  bool
}

func (h *requestHeap) Len() int { return len(h.items) }

func (h *requestHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if !h.fifo && a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (h *requestHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *requestHeap) Push(x any) {
	item := x.(*queuedRequest)
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *requestHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	return item
}

// victim returns the lowest-priority, oldest-enqueued pending request, or
// nil when the heap is empty.
func (h *requestHeap) victim() *queuedRequest {
	var v *queuedRequest
	for _, item := range h.items {
		if v == nil || item.priority < v.priority ||
			(item.priority == v.priority && item.seq < v.seq) {
			v = item
		}
	}
	return v
}

// Queue is a bounded, priority-ordered admission queue enforcing a
// concurrency limit, a dispatch rate cap, and backpressure. A single
// dispatcher goroutine is the only writer of dispatch decisions.
type Queue struct {
	config  QueueConfig
	limiter *rate.Limiter

	mu     sync.Mutex
	cond   *sync.Cond
	heap   requestHeap
	active int
	seq    uint64
	closed bool

	dispatchCtx context.Context
	cancel      context.CancelFunc
	stopped     chan struct{}

	startTime  time.Time
	enqueued   int64
	dispatched int64
	completed  int64
	failed     int64
	rejected   int64
	shed       int64
	expired    int64
}

// NewQueue creates a queue and starts its dispatcher.
func NewQueue(config QueueConfig) *Queue {
	cfg := config.withDefaults()
	burst := int(math.Ceil(cfg.RateLimitPerSecond))
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config:      cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst),
		heap:        requestHeap{fifo: cfg.PriorityDisabled},
		dispatchCtx: ctx,
		cancel:      cancel,
		stopped:     make(chan struct{}),
		startTime:   time.Now(),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.dispatch()
	return q
}

// Enqueue admits the operation and blocks until it completes, is rejected,
// or ctx is cancelled while still pending. The returned error is one of the
// typed queue errors, the operation's own error, or ctx.Err().
func (q *Queue) Enqueue(ctx context.Context, op Operation, opts EnqueueOptions) (any, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = q.config.Timeout
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}

	depth := q.heap.Len()
	capacity := q.config.MaxSize
	if capacity < 0 {
		capacity = 0
	}
	if depth >= capacity {
		q.rejected++
		q.mu.Unlock()
		return nil, &QueueOverflowError{Size: depth, MaxSize: capacity}
	}

	// Backpressure: above the threshold, evict the lowest-priority oldest
	// pending request to keep room for higher-priority admissions.
	if depth >= q.config.BackpressureThreshold {
		if v := q.heap.victim(); v != nil && v.priority < opts.Priority {
			heap.Remove(&q.heap, v.index)
			q.rejected++
			q.shed++
			v.resolve(nil, &QueueOverflowError{Size: depth, MaxSize: q.config.MaxSize, Shed: true})
		}
	}

	now := time.Now()
	q.seq++
	item := &queuedRequest{
		id:          uuid.NewString(),
		priority:    opts.Priority,
		seq:         q.seq,
		enqueueTime: now,
		deadline:    now.Add(timeout),
		op:          op,
		ctx:         ctx,
		done:        make(chan outcome, 1),
	}
	heap.Push(&q.heap, item)
	q.enqueued++
	q.cond.Signal()
	q.mu.Unlock()

	select {
	case out := <-item.done:
		return out.result, out.err
	case <-ctx.Done():
		q.mu.Lock()
		if item.index >= 0 {
			// Still pending: withdraw it.
			heap.Remove(&q.heap, item.index)
			q.mu.Unlock()
			return nil, ctx.Err()
		}
		q.mu.Unlock()
		// Already dispatched; cancellation of the running operation is
		// cooperative, so wait for its outcome.
		out := <-item.done
		return out.result, out.err
	}
}

// dispatch is the queue's single dispatcher loop. It pulls the
// highest-priority oldest request whenever a concurrency slot and a rate
// token are available.
func (q *Queue) dispatch() {
	defer close(q.stopped)

	for {
		item, ok := q.next()
		if !ok {
			return
		}

		if err := q.limiter.Wait(q.dispatchCtx); err != nil {
			q.finish(item, nil, ErrQueueClosed, false)
			continue
		}

		if time.Now().After(item.deadline) {
			q.mu.Lock()
			q.expired++
			q.active--
			q.cond.Signal()
			q.mu.Unlock()
			item.resolve(nil, &QueueTimeoutError{ID: item.id, Waited: time.Since(item.enqueueTime)})
			continue
		}

		q.mu.Lock()
		q.dispatched++
		q.mu.Unlock()
		go q.run(item)
	}
}

// next blocks until a request and a concurrency slot are available,
// reserving the slot. It returns false once the queue is closed and
// drained.
func (q *Queue) next() (*queuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			q.drainLocked()
			return nil, false
		}
		if q.heap.Len() > 0 && q.active < q.config.MaxConcurrent {
			item := heap.Pop(&q.heap).(*queuedRequest)
			q.active++
			return item, true
		}
		q.cond.Wait()
	}
}

func (q *Queue) run(item *queuedRequest) {
	result, err := item.op(item.ctx)

	if err != nil && q.config.RetryFailedRequests && !item.requeued {
		q.mu.Lock()
		if !q.closed && q.heap.Len() < q.config.MaxSize {
			item.requeued = true
			item.deadline = time.Now().Add(q.config.Timeout)
			q.seq++
			item.seq = q.seq
			heap.Push(&q.heap, item)
			q.active--
			q.cond.Signal()
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}

	q.finish(item, result, err, true)
}

func (q *Queue) finish(item *queuedRequest, result any, err error, ran bool) {
	q.mu.Lock()
	q.active--
	if ran {
		if err != nil {
			q.failed++
		} else {
			q.completed++
		}
	}
	q.cond.Signal()
	q.mu.Unlock()
	item.resolve(result, err)
}

// drainLocked rejects every pending request. Called with the lock held
// during close.
func (q *Queue) drainLocked() {
	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*queuedRequest)
		q.rejected++
		item.resolve(nil, ErrQueueClosed)
	}
}

// Close stops admission, rejects pending requests, and releases the
// dispatcher. In-flight operations run to completion.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.drainLocked()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancel()
	<-q.stopped
}

// Shutdown closes the queue and waits until in-flight operations finish or
// ctx expires.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Close()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		q.mu.Lock()
		active := q.active
		q.mu.Unlock()
		if active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// SetRateLimit replaces the dispatch throughput cap at runtime.
func (q *Queue) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		return
	}
	burst := int(math.Ceil(perSecond))
	if burst < 1 {
		burst = 1
	}
	q.limiter.SetLimit(rate.Limit(perSecond))
	q.limiter.SetBurst(burst)
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Depth      int
	Active     int
	Enqueued   int64
	Dispatched int64
	Completed  int64
	Failed     int64
	Rejected   int64
	Shed       int64
	Expired    int64

	// Throughput is completed operations per second since the queue
	// started.
	Throughput float64
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	throughput := 0.0
	if elapsed := time.Since(q.startTime).Seconds(); elapsed > 0 {
		throughput = float64(q.completed) / elapsed
	}

	return QueueStats{
		Depth:      q.heap.Len(),
		Active:     q.active,
		Enqueued:   q.enqueued,
		Dispatched: q.dispatched,
		Completed:  q.completed,
		Failed:     q.failed,
		Rejected:   q.rejected,
		Shed:       q.shed,
		Expired:    q.expired,
		Throughput: throughput,
	}
}

// QueueHealth reports the queue's occupancy status.
type QueueHealth struct {
	// Status is "healthy", "warning", or "critical".
	Status    string
	Depth     int
	MaxSize   int
	Active    int
	Rejected  int64
	Occupancy float64
}

// Health derives the queue's status from its occupancy: warning at the
// backpressure threshold, critical at capacity.
func (q *Queue) Health() QueueHealth {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := q.heap.Len()
	status := "healthy"
	occupancy := 100.0
	switch {
	case q.config.MaxSize <= 0 || depth >= q.config.MaxSize:
		status = "critical"
	case depth >= q.config.BackpressureThreshold:
		status = "warning"
	}
	if q.config.MaxSize > 0 {
		occupancy = float64(depth) / float64(q.config.MaxSize) * 100
	}

	return QueueHealth{
		Status:    status,
		Depth:     depth,
		MaxSize:   q.config.MaxSize,
		Active:    q.active,
		Rejected:  q.rejected,
		Occupancy: occupancy,
	}
}
