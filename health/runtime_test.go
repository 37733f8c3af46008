package health

import (
	"context"
	"testing"
)

func TestRuntimeChecker_Defaults(t *testing.T) {
	c := NewRuntimeChecker(RuntimeCheckerConfig{})

	if c.config.WarningGoroutines != 5000 {
		t.Errorf("WarningGoroutines = %d, want 5000", c.config.WarningGoroutines)
	}
	if c.config.CriticalGoroutines != 20000 {
		t.Errorf("CriticalGoroutines = %d, want 20000", c.config.CriticalGoroutines)
	}
	if c.config.WarningHeapBytes != 1<<30 {
		t.Errorf("WarningHeapBytes = %d, want 1 GiB", c.config.WarningHeapBytes)
	}
}

func TestRuntimeChecker_HealthyUnderLimits(t *testing.T) {
	c := NewRuntimeChecker(RuntimeCheckerConfig{})

	result := c.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v (%s), want healthy", result.Status, result.Message)
	}
	if result.Details["goroutines"] == nil {
		t.Error("Details missing goroutine count")
	}
}

func TestRuntimeChecker_WarningThreshold(t *testing.T) {
	// A threshold of 1 goroutine always trips.
	c := NewRuntimeChecker(RuntimeCheckerConfig{
		WarningGoroutines:  1,
		CriticalGoroutines: 1 << 30,
	})

	result := c.Check(context.Background())
	if result.Status != StatusWarning {
		t.Errorf("Status = %v, want warning", result.Status)
	}
}

func TestRuntimeChecker_Name(t *testing.T) {
	c := NewRuntimeChecker(RuntimeCheckerConfig{})
	if c.Name() != "runtime" {
		t.Errorf("Name() = %q, want runtime", c.Name())
	}
}
