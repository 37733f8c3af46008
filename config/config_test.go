package config

import (
	"testing"
	"time"
)

func TestPipeline_Defaults(t *testing.T) {
	cfg := Pipeline()

	// Zero values so component defaults still apply downstream.
	if cfg.CircuitBreaker.FailureThreshold != 0 {
		t.Errorf("FailureThreshold = %d, want 0", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.Retry.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.NoJitter {
		t.Error("NoJitter = true, want false when jitter env is unset")
	}
	if cfg.Queue.MaxSize != 0 {
		t.Errorf("MaxSize = %d, want 0", cfg.Queue.MaxSize)
	}
	if cfg.MonitorInterval != 0 {
		t.Errorf("MonitorInterval = %v, want 0", cfg.MonitorInterval)
	}
}

func TestPipeline_FromEnvironment(t *testing.T) {
	t.Setenv(EnvFailureThreshold, "9")
	t.Setenv(EnvRecoveryTimeout, "45s")
	t.Setenv(EnvSuccessThreshold, "4")
	t.Setenv(EnvMaxAttempts, "6")
	t.Setenv(EnvBaseDelay, "250ms")
	t.Setenv(EnvBackoffMultiplier, "1.5")
	t.Setenv(EnvRetryJitter, "false")
	t.Setenv(EnvQueueMaxSize, "500")
	t.Setenv(EnvQueueMaxConcurrent, "25")
	t.Setenv(EnvQueueRateLimit, "75.5")
	t.Setenv(EnvMonitorInterval, "10s")

	cfg := Pipeline()

	if cfg.CircuitBreaker.FailureThreshold != 9 {
		t.Errorf("FailureThreshold = %d, want 9", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeout != 45*time.Second {
		t.Errorf("RecoveryTimeout = %v, want 45s", cfg.CircuitBreaker.RecoveryTimeout)
	}
	if cfg.CircuitBreaker.SuccessThreshold != 4 {
		t.Errorf("SuccessThreshold = %d, want 4", cfg.CircuitBreaker.SuccessThreshold)
	}
	if cfg.Retry.MaxAttempts != 6 {
		t.Errorf("MaxAttempts = %d, want 6", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 250ms", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.BackoffMultiplier != 1.5 {
		t.Errorf("BackoffMultiplier = %v, want 1.5", cfg.Retry.BackoffMultiplier)
	}
	if !cfg.Retry.NoJitter {
		t.Error("NoJitter = false, want true when jitter env is false")
	}
	if cfg.Queue.MaxSize != 500 {
		t.Errorf("MaxSize = %d, want 500", cfg.Queue.MaxSize)
	}
	if cfg.Queue.MaxConcurrent != 25 {
		t.Errorf("MaxConcurrent = %d, want 25", cfg.Queue.MaxConcurrent)
	}
	if cfg.Queue.RateLimitPerSecond != 75.5 {
		t.Errorf("RateLimitPerSecond = %v, want 75.5", cfg.Queue.RateLimitPerSecond)
	}
	if cfg.MonitorInterval != 10*time.Second {
		t.Errorf("MonitorInterval = %v, want 10s", cfg.MonitorInterval)
	}
}

func TestObserve_Defaults(t *testing.T) {
	cfg := Observe()

	if cfg.ServiceName != "opsguard" {
		t.Errorf("ServiceName = %q, want opsguard", cfg.ServiceName)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false with no exporter named")
	}
	if cfg.Tracing.SamplePct != 1.0 {
		t.Errorf("SamplePct = %v, want 1.0", cfg.Tracing.SamplePct)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false with no exporter named")
	}
	if cfg.Logging.Enabled {
		t.Error("Logging.Enabled = true, want false with no level set")
	}
}

func TestObserve_FromEnvironment(t *testing.T) {
	t.Setenv(EnvServiceName, "checkout")
	t.Setenv(EnvServiceVersion, "1.4.2")
	t.Setenv(EnvTracingExporter, "stdout")
	t.Setenv(EnvTracingSample, "0.25")
	t.Setenv(EnvMetricsExporter, "prometheus")
	t.Setenv(EnvLogLevel, "debug")

	cfg := Observe()

	if cfg.ServiceName != "checkout" {
		t.Errorf("ServiceName = %q, want checkout", cfg.ServiceName)
	}
	if cfg.Version != "1.4.2" {
		t.Errorf("Version = %q, want 1.4.2", cfg.Version)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("Tracing = %+v, want enabled stdout", cfg.Tracing)
	}
	if cfg.Tracing.SamplePct != 0.25 {
		t.Errorf("SamplePct = %v, want 0.25", cfg.Tracing.SamplePct)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Exporter != "prometheus" {
		t.Errorf("Metrics = %+v, want enabled prometheus", cfg.Metrics)
	}
	if !cfg.Logging.Enabled || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v, want enabled debug", cfg.Logging)
	}
}

func TestObserve_NoneDisables(t *testing.T) {
	t.Setenv(EnvTracingExporter, "none")
	t.Setenv(EnvMetricsExporter, "none")

	cfg := Observe()

	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false for exporter none")
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false for exporter none")
	}
}
