// Package fallback provides last-known-good value stores for graceful
// degradation.
//
// It provides a Store interface with a TTL-bounded memory implementation,
// deterministic key derivation, retention policies, and a Source that
// captures successful results and serves them back when the primary path
// fails.
package fallback
