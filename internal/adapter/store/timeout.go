package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-swarm/internal/domain"
)

// TimeoutStore bounds every round trip to the wrapped store. A call that
// runs out of budget fails with domain.ErrStoreTimeout.
type TimeoutStore struct {
	inner   domain.KeyedStore
	timeout time.Duration
}

// NewTimeoutStore wraps inner. A non-positive timeout disables the bound.
func NewTimeoutStore(inner domain.KeyedStore, timeout time.Duration) *TimeoutStore {
	return &TimeoutStore{inner: inner, timeout: timeout}
}

func (s *TimeoutStore) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *TimeoutStore) check(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreTimeout) {
		return fmt.Errorf("%s %q: %w", op, key, domain.ErrStoreTimeout)
	}
	return err
}

func (s *TimeoutStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	return s.check(ctx, "put", key, s.inner.Put(ctx, key, value, ttl))
}

func (s *TimeoutStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	v, ok, err := s.inner.Get(ctx, key)
	return v, ok, s.check(ctx, "get", key, err)
}

func (s *TimeoutStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	return s.check(ctx, "delete", key, s.inner.Delete(ctx, key))
}

func (s *TimeoutStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	keys, err := s.inner.ListKeys(ctx, prefix)
	return keys, s.check(ctx, "list", prefix, err)
}
