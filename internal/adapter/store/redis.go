package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisClient abstracts the Redis operations needed by RedisStore.
// This allows a real go-redis client or a mock to be used interchangeably.
type RedisClient interface {
	// Set writes key with an optional expiration (0 = none).
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	// Get returns the value of key; ok is false when the key does not exist.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) error
	// Scan returns every key matching a glob pattern.
	Scan(ctx context.Context, match string) ([]string, error)
	// Close shuts down the client.
	Close() error
}

// RedisStore implements domain.KeyedStore on top of Redis SET EX / GET / DEL / SCAN.
type RedisStore struct {
	client RedisClient
	logger *slog.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client RedisClient, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// OpenRedis dials url (redis://[:password@]host:port/db), verifies the
// connection with PING, and returns a ready store.
func OpenRedis(ctx context.Context, url string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, storeErr(ctx, "ping", opts.Addr, err)
	}
	logger.Info("redis store connected", "addr", opts.Addr, "db", opts.DB)
	return NewRedisStore(&goRedisClient{client: rdb}, logger), nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return storeErr(ctx, "put", key, s.client.Set(ctx, key, value, ttl))
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, false, storeErr(ctx, "get", key, err)
	}
	return v, ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return storeErr(ctx, "delete", key, s.client.Del(ctx, key))
}

func (s *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.client.Scan(ctx, escapeGlob(prefix)+"*")
	if err != nil {
		return nil, storeErr(ctx, "list", prefix, err)
	}
	// SCAN may return duplicates across cursor steps.
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// escapeGlob escapes Redis MATCH metacharacters so prefix is matched literally.
func escapeGlob(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// goRedisClient adapts *goredis.Client to RedisClient.
type goRedisClient struct {
	client *goredis.Client
}

func (r *goRedisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *goRedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *goRedisClient) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *goRedisClient) Scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *goRedisClient) Close() error {
	return r.client.Close()
}
