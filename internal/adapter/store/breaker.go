package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"agent-swarm/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
}

// BreakerStore wraps a KeyedStore with circuit breaker protection. While the
// circuit is open, calls fail fast with ErrStoreUnavailable wrapping
// ErrCircuitOpen instead of queueing on a dead backend.
type BreakerStore struct {
	inner   domain.KeyedStore
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with a circuit breaker. Zero-valued fields in
// cfg fall back to defaults.
func NewBreakerStore(inner domain.KeyedStore, name string, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "store:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerStore{inner: inner, breaker: cb}
}

// State reports the current breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.breaker.State()
}

func (s *BreakerStore) run(op, key string, fn func() (any, error)) (any, error) {
	v, err := s.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %q: %w: %w", op, key, domain.ErrStoreUnavailable, domain.ErrCircuitOpen)
	}
	return v, err
}

type getResult struct {
	value []byte
	ok    bool
}

func (s *BreakerStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.run("put", key, func() (any, error) {
		return nil, s.inner.Put(ctx, key, value, ttl)
	})
	return err
}

func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.run("get", key, func() (any, error) {
		value, ok, err := s.inner.Get(ctx, key)
		return getResult{value: value, ok: ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(getResult)
	return r.value, r.ok, nil
}

func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.run("delete", key, func() (any, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

func (s *BreakerStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	v, err := s.run("list", prefix, func() (any, error) {
		return s.inner.ListKeys(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	keys, _ := v.([]string)
	return keys, nil
}
