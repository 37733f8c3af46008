// Package health provides component health checks and aggregation for the
// resilience pipeline.
//
// A Checker reports the status of one component (a circuit breaker group,
// an admission queue, the Go runtime). The Aggregator fans out to all
// registered checkers and derives an overall status: the worst individual
// result wins. HTTP probe handlers are provided for services embedding the
// pipeline.
package health
