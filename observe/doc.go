// Package observe provides observability primitives for the resilience
// pipeline.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Consumers wire the observer into the recovery
// orchestrator or wrap individual operations with the middleware.
package observe
