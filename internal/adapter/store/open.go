package store

import (
	"context"
	"fmt"
	"log/slog"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/config"
)

// Sweeper is implemented by backends that keep expired keys around until a
// bulk purge. Redis expires keys on its own and does not implement it.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Handle is an opened keyed store: the decorated port the core talks to,
// plus the lifecycle hooks of the raw backend underneath it.
type Handle struct {
	domain.KeyedStore

	Backend string
	backend domain.KeyedStore
	closeFn func() error
}

// Close releases the backend connection, if any.
func (h *Handle) Close() error {
	if h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

// Sweep purges expired keys from backends that need it. It returns 0 for
// backends that expire keys themselves.
func (h *Handle) Sweep(ctx context.Context) (int64, error) {
	s, ok := h.backend.(Sweeper)
	if !ok {
		return 0, nil
	}
	return s.Sweep(ctx)
}

// Open builds the backend named by cfg.Backend and wraps it, outermost first,
// in the rate limiter, the circuit breaker and the per-call timeout. Each
// decorator is skipped when its setting disables it.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	h := &Handle{Backend: cfg.Backend}
	switch cfg.Backend {
	case "", "memory":
		h.Backend = "memory"
		h.backend = NewMemoryStore()
	case "redis":
		rs, err := OpenRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		h.backend, h.closeFn = rs, rs.Close
	case "sqlite":
		ss, err := OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		h.backend, h.closeFn = ss, ss.Close
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	var s domain.KeyedStore = h.backend
	if cfg.Timeout > 0 {
		s = NewTimeoutStore(s, cfg.Timeout)
	}
	if cfg.Breaker.Enabled {
		s = NewBreakerStore(s, h.Backend, BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		}, logger)
	}
	if cfg.RateLimit > 0 {
		s = NewLimitedStore(s, cfg.RateLimit, cfg.Burst)
	}
	h.KeyedStore = s

	logger.Info("keyed store opened",
		"backend", h.Backend,
		"timeout", cfg.Timeout,
		"breaker", cfg.Breaker.Enabled,
		"rate_limit", cfg.RateLimit,
	)
	return h, nil
}
