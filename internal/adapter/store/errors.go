// Package store provides domain.KeyedStore backends (in-memory, Redis,
// SQLite) and the decorators that bound how long and how often the
// orchestration core may wait on them.
package store

import (
	"context"
	"errors"
	"fmt"

	"agent-swarm/internal/domain"
)

// storeErr maps a backend failure onto the keyed-store sentinels. A context
// deadline becomes ErrStoreTimeout; everything else is ErrStoreUnavailable.
func storeErr(ctx context.Context, op, key string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsStoreFailure(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s %q: %w", op, key, domain.ErrStoreTimeout)
	}
	return fmt.Errorf("%s %q: %w: %w", op, key, domain.ErrStoreUnavailable, err)
}
