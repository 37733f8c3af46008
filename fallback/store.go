package fallback

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a store key.
const MaxKeyLength = 512

// Sentinel errors for store operations.
var (
	ErrNilStore   = errors.New("fallback: store is nil")
	ErrInvalidKey = errors.New("fallback: key is invalid")
	ErrKeyTooLong = errors.New("fallback: key exceeds max length")
	ErrNoValue    = errors.New("fallback: no value recorded")
)

// Store holds last-known-good results keyed by endpoint.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: Get should never error; it returns (nil, false) on miss.
type Store interface {
	// Get retrieves a stored value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores a value with the given TTL. TTL=0 means do not retain.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a stored value. Idempotent, no error on miss.
	Delete(ctx context.Context, key string) error
}

// ValidateKey checks if a key is usable for storage.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
