package store

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-swarm/internal/domain"
)

// --- Mock Redis client ---

type mockRedis struct {
	mu       sync.Mutex
	store    map[string][]byte
	expiry   map[string]time.Duration
	patterns []string
	dupScan  bool
	err      error
	closed   bool
}

func newMockRedis() *mockRedis {
	return &mockRedis{
		store:  make(map[string][]byte),
		expiry: make(map[string]time.Duration),
	}
}

func (m *mockRedis) Set(_ context.Context, key string, value []byte, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.store[key] = value
	m.expiry[key] = exp
	return nil
}

func (m *mockRedis) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.store[key]
	return v, ok, nil
}

func (m *mockRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, k := range keys {
		delete(m.store, k)
		delete(m.expiry, k)
	}
	return nil
}

func (m *mockRedis) Scan(_ context.Context, match string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.patterns = append(m.patterns, match)
	var keys []string
	for k := range m.store {
		if ok, _ := path.Match(match, k); ok {
			keys = append(keys, k)
			if m.dupScan {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (m *mockRedis) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newTestRedisStore(m *mockRedis) *RedisStore {
	return NewRedisStore(m, slog.New(slog.DiscardHandler))
}

func TestRedisStore_PutUsesExpiry(t *testing.T) {
	ctx := context.Background()
	m := newMockRedis()
	s := newTestRedisStore(m)

	require.NoError(t, s.Put(ctx, "agent:1", []byte("a"), time.Hour))
	require.NoError(t, s.Put(ctx, "agent:2", []byte("b"), 0))
	require.NoError(t, s.Put(ctx, "agent:3", []byte("c"), -time.Second))

	assert.Equal(t, time.Hour, m.expiry["agent:1"])
	assert.Equal(t, time.Duration(0), m.expiry["agent:2"])
	assert.Equal(t, time.Duration(0), m.expiry["agent:3"], "negative ttl must not reach SET")
}

func TestRedisStore_GetAbsent(t *testing.T) {
	s := newTestRedisStore(newMockRedis())

	v, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestRedisStore_ListKeysDedupsAndSorts(t *testing.T) {
	ctx := context.Background()
	m := newMockRedis()
	m.dupScan = true
	s := newTestRedisStore(m)

	for _, k := range []string{"session:c", "session:a", "agent:x", "session:b"} {
		require.NoError(t, s.Put(ctx, k, []byte("v"), 0))
	}

	keys, err := s.ListKeys(ctx, "session:")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:a", "session:b", "session:c"}, keys)
	assert.Equal(t, []string{"session:*"}, m.patterns)
}

func TestRedisStore_ListKeysEscapesPattern(t *testing.T) {
	ctx := context.Background()
	m := newMockRedis()
	s := newTestRedisStore(m)

	require.NoError(t, s.Put(ctx, "a*b:1", []byte("v"), 0))
	require.NoError(t, s.Put(ctx, "aXb:1", []byte("v"), 0))

	keys, err := s.ListKeys(ctx, "a*b:")
	require.NoError(t, err)
	assert.Equal(t, []string{"a*b:1"}, keys)
	assert.Equal(t, `a\*b:*`, m.patterns[0])
}

func TestRedisStore_ErrorsAreStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	m := newMockRedis()
	m.err = errors.New("connection refused")
	s := newTestRedisStore(m)

	err := s.Put(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.ErrorIs(t, s.Delete(ctx, "k"), domain.ErrStoreUnavailable)

	_, err = s.ListKeys(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRedisStore_DeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	m := newMockRedis()
	m.err = context.DeadlineExceeded
	s := newTestRedisStore(m)

	err := s.Put(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestRedisStore_Close(t *testing.T) {
	m := newMockRedis()
	s := newTestRedisStore(m)
	require.NoError(t, s.Close())
	assert.True(t, m.closed)
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"session:", "session:"},
		{"a*b", `a\*b`},
		{"q?[x]", `q\?\[x\]`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeGlob(tt.in), tt.in)
	}
}
