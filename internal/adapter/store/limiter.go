package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"agent-swarm/internal/domain"
)

// LimitedStore spaces calls to the wrapped store with a token bucket, so a
// burst of dashboard interactions cannot exhaust a metered backend's request
// quota. A caller whose context ends while waiting gets ErrStoreUnavailable
// wrapping ErrRateLimit.
type LimitedStore struct {
	inner   domain.KeyedStore
	limiter *rate.Limiter
}

// NewLimitedStore allows perSecond operations with the given burst.
func NewLimitedStore(inner domain.KeyedStore, perSecond float64, burst int) *LimitedStore {
	if burst <= 0 {
		burst = 1
	}
	return &LimitedStore{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (s *LimitedStore) wait(ctx context.Context, op, key string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %q: %w: %w: %v", op, key, domain.ErrStoreUnavailable, domain.ErrRateLimit, err)
	}
	return nil
}

func (s *LimitedStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.wait(ctx, "put", key); err != nil {
		return err
	}
	return s.inner.Put(ctx, key, value, ttl)
}

func (s *LimitedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.wait(ctx, "get", key); err != nil {
		return nil, false, err
	}
	return s.inner.Get(ctx, key)
}

func (s *LimitedStore) Delete(ctx context.Context, key string) error {
	if err := s.wait(ctx, "delete", key); err != nil {
		return err
	}
	return s.inner.Delete(ctx, key)
}

func (s *LimitedStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.wait(ctx, "list", prefix); err != nil {
		return nil, err
	}
	return s.inner.ListKeys(ctx, prefix)
}
