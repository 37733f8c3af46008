package fallback

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Source captures successful results and serves them back as degraded
// responses when the primary path fails. Concurrent loads for the same key
// are deduplicated.
type Source struct {
	store  Store
	policy Policy
	group  singleflight.Group
}

// NewSource creates a source over the store with the given retention policy.
func NewSource(store Store, policy Policy) (*Source, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &Source{store: store, policy: policy}, nil
}

// Record stores a value under key with the policy's default retention.
func (s *Source) Record(ctx context.Context, key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if !s.policy.ShouldRetain() {
		return nil
	}
	return s.store.Set(ctx, key, value, s.policy.EffectiveTTL(0))
}

// Capture wraps an operation so its successful results are recorded under
// key. Errors are never recorded, and a failed record does not fail the
// operation.
func (s *Source) Capture(key string, op func(ctx context.Context) (any, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		result, err := op(ctx)
		if err != nil {
			return result, err
		}
		_ = s.Record(ctx, key, result)
		return result, nil
	}
}

// Value returns an operation that serves the last recorded value for key,
// failing with ErrNoValue when none is retained. Suitable as a degraded
// substitute for a failing primary operation.
func (s *Source) Value(key string) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
		if value, ok := s.store.Get(ctx, key); ok {
			return value, nil
		}
		return nil, ErrNoValue
	}
}

// Load returns the retained value for key, or invokes load to produce one.
// Concurrent loads for the same key are collapsed into a single call and
// the result shared. Successful loads are recorded.
func (s *Source) Load(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) (any, error)) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if value, ok := s.store.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check: another flight may have populated the store between
		// the miss and the flight starting.
		if value, ok := s.store.Get(ctx, key); ok {
			return value, nil
		}
		result, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if s.policy.ShouldRetain() {
			_ = s.store.Set(ctx, key, result, s.policy.EffectiveTTL(ttl))
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Forget drops the retained value for key.
func (s *Source) Forget(ctx context.Context, key string) error {
	s.group.Forget(key)
	return s.store.Delete(ctx, key)
}
