package config

import (
	"github.com/jonwraymond/opsguard/observe"
	"github.com/jonwraymond/opsguard/resilience"
)

// Environment variable names read by Pipeline and Observe.
const (
	EnvFailureThreshold   = "OPSGUARD_CB_FAILURE_THRESHOLD"
	EnvRecoveryTimeout    = "OPSGUARD_CB_RECOVERY_TIMEOUT"
	EnvSuccessThreshold   = "OPSGUARD_CB_SUCCESS_THRESHOLD"
	EnvMonitoringPeriod   = "OPSGUARD_CB_MONITORING_PERIOD"
	EnvHalfOpenMaxCalls   = "OPSGUARD_CB_HALF_OPEN_MAX_CALLS"
	EnvMaxAttempts        = "OPSGUARD_RETRY_MAX_ATTEMPTS"
	EnvBaseDelay          = "OPSGUARD_RETRY_BASE_DELAY"
	EnvMaxDelay           = "OPSGUARD_RETRY_MAX_DELAY"
	EnvBackoffMultiplier  = "OPSGUARD_RETRY_BACKOFF_MULTIPLIER"
	EnvRetryJitter        = "OPSGUARD_RETRY_JITTER"
	EnvRetryTimeout       = "OPSGUARD_RETRY_TIMEOUT"
	EnvQueueMaxSize       = "OPSGUARD_QUEUE_MAX_SIZE"
	EnvQueueMaxConcurrent = "OPSGUARD_QUEUE_MAX_CONCURRENT"
	EnvQueueTimeout       = "OPSGUARD_QUEUE_TIMEOUT"
	EnvQueueRateLimit     = "OPSGUARD_QUEUE_RATE_LIMIT"
	EnvMonitorInterval    = "OPSGUARD_MONITOR_INTERVAL"

	EnvServiceName     = "OPSGUARD_SERVICE_NAME"
	EnvServiceVersion  = "OPSGUARD_SERVICE_VERSION"
	EnvTracingExporter = "OPSGUARD_TRACING_EXPORTER"
	EnvTracingSample   = "OPSGUARD_TRACING_SAMPLE_PCT"
	EnvMetricsExporter = "OPSGUARD_METRICS_EXPORTER"
	EnvLogLevel        = "OPSGUARD_LOG_LEVEL"
)

// Pipeline assembles a resilience configuration from OPSGUARD_* variables.
// Unset or malformed variables fall back to the zero value, so component
// defaults still apply.
func Pipeline() resilience.Config {
	return resilience.Config{
		CircuitBreaker: resilience.BreakerConfig{
			FailureThreshold: Int(EnvFailureThreshold, 0),
			RecoveryTimeout:  Duration(EnvRecoveryTimeout, 0),
			SuccessThreshold: Int(EnvSuccessThreshold, 0),
			MonitoringPeriod: Duration(EnvMonitoringPeriod, 0),
			HalfOpenMaxCalls: Int(EnvHalfOpenMaxCalls, 0),
		},
		Retry: resilience.RetryConfig{
			MaxAttempts:       Int(EnvMaxAttempts, 0),
			BaseDelay:         Duration(EnvBaseDelay, 0),
			MaxDelay:          Duration(EnvMaxDelay, 0),
			BackoffMultiplier: Float(EnvBackoffMultiplier, 0),
			NoJitter:          !Bool(EnvRetryJitter, true),
			Timeout:           Duration(EnvRetryTimeout, 0),
		},
		Queue: resilience.QueueConfig{
			MaxSize:            Int(EnvQueueMaxSize, 0),
			MaxConcurrent:      Int(EnvQueueMaxConcurrent, 0),
			Timeout:            Duration(EnvQueueTimeout, 0),
			RateLimitPerSecond: Float(EnvQueueRateLimit, 0),
		},
		MonitorInterval: Duration(EnvMonitorInterval, 0),
	}
}

// Observe assembles an observability configuration from OPSGUARD_*
// variables. Tracing and metrics are enabled when their exporter is named.
func Observe() observe.Config {
	tracingExporter := String(EnvTracingExporter, "")
	metricsExporter := String(EnvMetricsExporter, "")
	logLevel := String(EnvLogLevel, "")

	return observe.Config{
		ServiceName: String(EnvServiceName, "opsguard"),
		Version:     String(EnvServiceVersion, ""),
		Tracing: observe.TracingConfig{
			Enabled:   tracingExporter != "" && tracingExporter != "none",
			Exporter:  tracingExporter,
			SamplePct: Float(EnvTracingSample, 1.0),
		},
		Metrics: observe.MetricsConfig{
			Enabled:  metricsExporter != "" && metricsExporter != "none",
			Exporter: metricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: logLevel != "",
			Level:   logLevel,
		},
	}
}
