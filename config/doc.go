// Package config loads pipeline and observability settings from the
// environment.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Typed lookups with defaults (see Duration, Int, Float, Bool)
//   - Assembling resilience and observe configurations from OPSGUARD_*
//     variables (see Pipeline and Observe)
package config
