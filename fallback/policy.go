package fallback

import "time"

// Policy configures how long last-known-good values are retained.
type Policy struct {
	// DefaultTTL is the retention to use when none is specified.
	// If zero, nothing is retained.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed retention. Override TTLs are clamped
	// to this. If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the default retention policy.
// DefaultTTL: 10 minutes, MaxTTL: 1 hour
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 10 * time.Minute,
		MaxTTL:     1 * time.Hour,
	}
}

// NoRetainPolicy returns a policy that disables retention entirely.
func NoRetainPolicy() Policy {
	return Policy{}
}

// ShouldRetain returns true if retention is enabled by this policy.
func (p Policy) ShouldRetain() bool {
	return p.DefaultTTL > 0
}

// EffectiveTTL returns the retention to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}
