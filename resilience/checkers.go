package resilience

import (
	"context"
	"fmt"

	"github.com/jonwraymond/opsguard/health"
)

// BreakerChecker reports the aggregate state of a manager's breakers.
// Any open circuit degrades the component to warning; all circuits open
// is critical.
type BreakerChecker struct {
	manager *BreakerManager
}

// NewBreakerChecker creates a checker over the manager's breakers.
func NewBreakerChecker(manager *BreakerManager) *BreakerChecker {
	return &BreakerChecker{manager: manager}
}

// Name implements health.Checker.
func (c *BreakerChecker) Name() string {
	return "circuit-breakers"
}

// Check implements health.Checker.
func (c *BreakerChecker) Check(ctx context.Context) health.Result {
	all := c.manager.AllStats()
	if len(all) == 0 {
		return health.Healthy("no circuits registered")
	}

	open := 0
	halfOpen := 0
	for _, bs := range all {
		switch bs.State {
		case StateOpen:
			open++
		case StateHalfOpen:
			halfOpen++
		}
	}

	details := map[string]any{
		"circuits":  len(all),
		"open":      open,
		"half_open": halfOpen,
	}

	switch {
	case open == len(all):
		return health.Critical(fmt.Sprintf("all %d circuits open", open), nil).WithDetails(details)
	case open > 0:
		return health.Warning(fmt.Sprintf("%d of %d circuits open", open, len(all))).WithDetails(details)
	case halfOpen > 0:
		return health.Warning(fmt.Sprintf("%d of %d circuits probing recovery", halfOpen, len(all))).WithDetails(details)
	default:
		return health.Healthy(fmt.Sprintf("all %d circuits closed", len(all))).WithDetails(details)
	}
}

// QueueChecker reports the admission queue's occupancy.
type QueueChecker struct {
	queue *Queue
}

// NewQueueChecker creates a checker over the queue.
func NewQueueChecker(queue *Queue) *QueueChecker {
	return &QueueChecker{queue: queue}
}

// Name implements health.Checker.
func (c *QueueChecker) Name() string {
	return "queue"
}

// Check implements health.Checker.
func (c *QueueChecker) Check(ctx context.Context) health.Result {
	qh := c.queue.Health()

	msg := fmt.Sprintf("depth %d of %d (%.0f%% occupied)", qh.Depth, qh.MaxSize, qh.Occupancy)
	details := map[string]any{
		"depth":    qh.Depth,
		"max_size": qh.MaxSize,
		"active":   qh.Active,
		"rejected": qh.Rejected,
	}

	switch qh.Status {
	case "critical":
		return health.Critical(msg, nil).WithDetails(details)
	case "warning":
		return health.Warning(msg).WithDetails(details)
	default:
		return health.Healthy(msg).WithDetails(details)
	}
}
