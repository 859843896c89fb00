package domain

import (
	"context"
	"time"
)

// KeyedStore is a key/value store with optional per-key expiry.
//
// Implementations wrap backend failures with ErrStoreUnavailable and report
// an exhausted deadline as ErrStoreTimeout.
type KeyedStore interface {
	// Put writes value under key. A ttl <= 0 means the key never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ListKeys returns every live key starting with prefix, sorted ascending.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
