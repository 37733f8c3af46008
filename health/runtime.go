package health

import (
	"context"
	"fmt"
	"runtime"
)

// RuntimeCheckerConfig configures the Go runtime health checker.
type RuntimeCheckerConfig struct {
	// WarningGoroutines is the goroutine count that triggers warning status.
	// Default: 5000
	WarningGoroutines int

	// CriticalGoroutines is the goroutine count that triggers critical status.
	// Default: 20000
	CriticalGoroutines int

	// WarningHeapBytes is the allocated heap size that triggers warning status.
	// Default: 1 GiB
	WarningHeapBytes uint64
}

// RuntimeChecker reports Go runtime pressure. A pipeline that dispatches
// every admission onto its own goroutine leaks visibly here first.
type RuntimeChecker struct {
	config RuntimeCheckerConfig
}

// NewRuntimeChecker creates a runtime health checker.
func NewRuntimeChecker(config RuntimeCheckerConfig) *RuntimeChecker {
	if config.WarningGoroutines <= 0 {
		config.WarningGoroutines = 5000
	}
	if config.CriticalGoroutines <= config.WarningGoroutines {
		config.CriticalGoroutines = config.WarningGoroutines * 4
	}
	if config.WarningHeapBytes == 0 {
		config.WarningHeapBytes = 1 << 30
	}

	return &RuntimeChecker{config: config}
}

// Name returns the name of this checker.
func (c *RuntimeChecker) Name() string {
	return "runtime"
}

// Check reports goroutine and heap pressure.
func (c *RuntimeChecker) Check(ctx context.Context) Result {
	goroutines := runtime.NumGoroutine()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	details := map[string]any{
		"goroutines": goroutines,
		"heap_alloc": mem.HeapAlloc,
		"num_gc":     mem.NumGC,
	}

	switch {
	case goroutines >= c.config.CriticalGoroutines:
		return Critical(fmt.Sprintf("%d goroutines (limit %d)", goroutines, c.config.CriticalGoroutines), nil).WithDetails(details)
	case goroutines >= c.config.WarningGoroutines:
		return Warning(fmt.Sprintf("%d goroutines (threshold %d)", goroutines, c.config.WarningGoroutines)).WithDetails(details)
	case mem.HeapAlloc >= c.config.WarningHeapBytes:
		return Warning(fmt.Sprintf("heap at %d bytes (threshold %d)", mem.HeapAlloc, c.config.WarningHeapBytes)).WithDetails(details)
	default:
		return Healthy("runtime within limits").WithDetails(details)
	}
}
