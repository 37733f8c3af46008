package resilience

import (
	"context"
	"sort"
	"sync"
)

// BreakerManager is a registry of named circuit breakers. Breakers are
// created lazily on first use and live for the manager's lifetime.
type BreakerManager struct {
	config BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerManager creates a manager whose breakers are built from config.
func NewBreakerManager(config BreakerConfig) *BreakerManager {
	return &BreakerManager{
		config:   config.withDefaults(),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (m *BreakerManager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, m.config)
	m.breakers[name] = cb
	return cb
}

// Execute runs the operation through the named breaker.
func (m *BreakerManager) Execute(ctx context.Context, name string, op Operation) (any, error) {
	return m.Get(name).Execute(ctx, op)
}

// Reset resets the named breaker to closed state. It is a no-op for names
// that have never been used.
func (m *BreakerManager) Reset(name string) {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		cb.Reset()
	}
}

// ResetAll resets every registered breaker to closed state.
func (m *BreakerManager) ResetAll() {
	m.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}

// Names returns the registered breaker names in sorted order.
func (m *BreakerManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllStats returns a stats snapshot for every registered breaker, keyed by
// name.
func (m *BreakerManager) AllStats() map[string]BreakerStats {
	m.mu.RLock()
	breakers := make(map[string]*CircuitBreaker, len(m.breakers))
	for name, cb := range m.breakers {
		breakers[name] = cb
	}
	m.mu.RUnlock()

	stats := make(map[string]BreakerStats, len(breakers))
	for name, cb := range breakers {
		stats[name] = cb.Stats()
	}
	return stats
}

// SetConfig replaces the config used for breakers created after this call.
// Existing breakers keep their original config.
func (m *BreakerManager) SetConfig(config BreakerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config.withDefaults()
}
