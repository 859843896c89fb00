// Package sessioncache holds per-task working context in the keyed store,
// bounded in count, size and lifetime.
package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/logger"
	"agent-swarm/internal/infra/tracer"
)

// Defaults applied by NewCache to zero-valued Config fields.
const (
	DefaultMaxSessions     = 50
	DefaultMaxContextBytes = 5 * 1024 * 1024
	DefaultTTL             = time.Hour
	DefaultKeyPrefix       = "session:"
)

// Config bounds the cache.
type Config struct {
	MaxSessions     int           // tracked sessions before the oldest is evicted
	MaxContextBytes int           // larger contexts are not persisted
	TTL             time.Duration // expiry of persisted contexts
	KeyPrefix       string        // session ids are KeyPrefix + ULID
}

// Result is the outcome of Process.
type Result struct {
	SessionID string `json:"session_id"`
	// Persisted is false when the context exceeded MaxContextBytes.
	Persisted bool                  `json:"persisted"`
	SizeBytes int                   `json:"size_bytes"`
	Workflow  domain.WorkflowResult `json:"workflow"`
}

// Cache tracks sessions in creation order and evicts the oldest when full.
// The tracked set and the store are only mutated together under one lock.
type Cache struct {
	store    domain.KeyedStore
	exec     domain.WorkflowExecutor
	recorder domain.Recorder
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	order    []string // tracked ids, oldest first
	sessions map[string]*tracked
	gen      uint64
	entropy  io.Reader
}

type tracked struct {
	domain.Session
	gen uint64 // bumped on every change; lets Reconcile skip in-flight sessions
}

// NewCache creates a Cache. exec must be non-nil; a nil recorder discards
// events.
func NewCache(store domain.KeyedStore, exec domain.WorkflowExecutor, cfg Config, recorder domain.Recorder, log *slog.Logger) *Cache {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxContextBytes <= 0 {
		cfg.MaxContextBytes = DefaultMaxContextBytes
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	now := time.Now()
	return &Cache{
		store:    store,
		exec:     exec,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.Component(log, "sessioncache"),
		sessions: make(map[string]*tracked),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}
}

// newID must be called with c.mu held; the monotonic entropy source is not
// safe for concurrent use.
func (c *Cache) newID() string {
	return c.cfg.KeyPrefix + ulid.MustNew(ulid.Timestamp(c.now()), c.entropy).String()
}

// InitSession admits a new session and returns its id. At capacity, the
// oldest tracked session is deleted from the store and untracked first, so
// the tracked count never exceeds MaxSessions. If that delete fails nothing
// changes and the error is returned.
func (c *Cache) InitSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) >= c.cfg.MaxSessions {
		if err := c.evictOldestLocked(ctx); err != nil {
			return "", domain.NewSubSystemError("session", "Cache.InitSession", err, "evict")
		}
	}

	id := c.newID()
	now := c.now()
	c.trackLocked(domain.Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(c.cfg.TTL)})
	return id, nil
}

// Load adopts session keys already in the store, typically left by an
// earlier process on a shared backend, so they count toward MaxSessions and
// are eviction candidates. Keys sort in creation order because ids end in a
// ULID. Oldest sessions are evicted until the tracked count fits. It returns
// the number of sessions adopted.
func (c *Cache) Load(ctx context.Context) (int, error) {
	keys, err := c.store.ListKeys(ctx, c.cfg.KeyPrefix)
	if err != nil {
		return 0, domain.NewSubSystemError("session", "Cache.Load", err, c.cfg.KeyPrefix)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	adopted := 0
	for _, id := range keys {
		if _, ok := c.sessions[id]; ok {
			continue
		}
		created := c.now()
		if u, err := ulid.ParseStrict(strings.TrimPrefix(id, c.cfg.KeyPrefix)); err == nil {
			created = ulid.Time(u.Time())
		}
		c.trackLocked(domain.Session{
			ID:        id,
			CreatedAt: created,
			ExpiresAt: created.Add(c.cfg.TTL),
			Persisted: true,
		})
		adopted++
	}
	slices.Sort(c.order)

	for len(c.order) > c.cfg.MaxSessions {
		if err := c.evictOldestLocked(ctx); err != nil {
			return adopted, domain.NewSubSystemError("session", "Cache.Load", err, "evict")
		}
	}
	if adopted > 0 {
		c.logger.Info("sessions loaded", "adopted", adopted, "tracked", len(c.order))
	}
	return adopted, nil
}

func (c *Cache) trackLocked(s domain.Session) {
	c.gen++
	c.order = append(c.order, s.ID)
	c.sessions[s.ID] = &tracked{Session: s, gen: c.gen}
}

// evictOldestLocked deletes the oldest tracked session's key and untracks
// it. On a store error nothing changes.
func (c *Cache) evictOldestLocked(ctx context.Context) error {
	victim := c.order[0]
	if err := c.store.Delete(ctx, victim); err != nil {
		return fmt.Errorf("%s: %w", victim, err)
	}
	c.untrackLocked(victim)
	c.logger.Info("session evicted", "session_id", victim, "tracked", len(c.order))
	c.recorder.Record(ctx, domain.Event{
		Type:      domain.EventSessionEvicted,
		Timestamp: c.now(),
		SessionID: victim,
	})
	return nil
}

// Process opens a session for task, persists the JSON-encoded context when
// it fits in MaxContextBytes, and runs the workflow executor. An oversized
// context is not an error: the workflow still runs and Result.Persisted is
// false. Executor failures are recorded and returned wrapped in
// domain.ErrDownstreamFailed; the session stays tracked.
func (c *Cache) Process(ctx context.Context, task domain.Task, taskContext any) (Result, error) {
	ctx, span := tracer.StartSpan(ctx, "sessioncache.Process")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("task_id", task.ID))

	id, err := c.InitSession(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return Result{}, err
	}
	res := Result{SessionID: id}
	span.SetAttributes(tracer.StringAttr("session_id", id))

	data, err := json.Marshal(taskContext)
	if err != nil {
		c.untrack(id)
		err = domain.NewSubSystemError("session", "Cache.Process", domain.ErrInvalidInput, fmt.Sprintf("encode context: %v", err))
		tracer.RecordError(span, err)
		return Result{}, err
	}
	res.SizeBytes = len(data)

	if res.SizeBytes <= c.cfg.MaxContextBytes {
		if err := c.store.Put(ctx, id, data, c.cfg.TTL); err != nil {
			c.untrack(id)
			err = domain.NewSubSystemError("session", "Cache.Process", err, id)
			tracer.RecordError(span, err)
			c.logger.Error("session write failed", "session_id", id, "task_id", task.ID, "error", err)
			return Result{}, err
		}
		res.Persisted = true
	} else {
		c.logger.Warn("session context too large, not persisted",
			"session_id", id, "task_id", task.ID, "size", res.SizeBytes, "max", c.cfg.MaxContextBytes)
		c.recorder.Record(ctx, domain.Event{
			Type:      domain.EventSessionSkipped,
			Timestamp: c.now(),
			SessionID: id,
			Payload:   domain.EventPayload(map[string]int{"size_bytes": res.SizeBytes, "max_bytes": c.cfg.MaxContextBytes}),
		})
	}
	stillTracked, err := c.annotate(ctx, id, task.ID, res.SizeBytes, res.Persisted)
	if err != nil {
		err = domain.NewSubSystemError("session", "Cache.Process", err, "drop evicted "+id)
		tracer.RecordError(span, err)
		return Result{}, err
	}
	if !stillTracked {
		res.Persisted = false
		c.logger.Warn("session evicted before its context was stored", "session_id", id, "task_id", task.ID)
	}
	span.SetAttributes(tracer.BoolAttr("persisted", res.Persisted), tracer.IntAttr("size_bytes", res.SizeBytes))

	c.recorder.Record(ctx, domain.Event{
		Type:      domain.EventSessionCreated,
		Timestamp: c.now(),
		SessionID: id,
		Payload:   domain.EventPayload(map[string]any{"task_id": task.ID, "persisted": res.Persisted}),
	})

	wf, err := c.exec.Execute(ctx, task, id)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrDownstreamFailed, err)
		tracer.RecordError(span, err)
		c.logger.Error("workflow execution failed", "session_id", id, "task_id", task.ID, "error", err)
		c.recorder.Record(ctx, domain.Event{
			Type:      domain.EventSessionFailed,
			Timestamp: c.now(),
			SessionID: id,
			Error:     err.Error(),
		})
		return res, domain.WrapOp("Cache.Process", err)
	}
	res.Workflow = wf
	tracer.SetOK(span)
	return res, nil
}

// Cleanup deletes a session's key and untracks it. Unknown, expired and
// already-removed sessions are a no-op; the tracked count only drops for
// sessions that were tracked. Ids outside the session key prefix are ignored.
func (c *Cache) Cleanup(ctx context.Context, id string) error {
	if !strings.HasPrefix(id, c.cfg.KeyPrefix) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		return domain.NewSubSystemError("session", "Cache.Cleanup", err, id)
	}
	if !c.untrackLocked(id) {
		return nil
	}
	c.logger.Debug("session cleaned up", "session_id", id, "tracked", len(c.order))
	c.recorder.Record(ctx, domain.Event{
		Type:      domain.EventSessionDeleted,
		Timestamp: c.now(),
		SessionID: id,
	})
	return nil
}

// Reconcile untracks sessions that are past their expiry, and persisted
// sessions whose key is gone from the store. Sessions touched after the key
// listing started are left alone. It returns how many were untracked.
func (c *Cache) Reconcile(ctx context.Context) (int, error) {
	c.mu.Lock()
	startGen := c.gen
	c.mu.Unlock()

	keys, err := c.store.ListKeys(ctx, c.cfg.KeyPrefix)
	if err != nil {
		return 0, domain.NewSubSystemError("session", "Cache.Reconcile", err, c.cfg.KeyPrefix)
	}
	live := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		live[k] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var stale []string
	for _, id := range c.order {
		s := c.sessions[id]
		if s.gen > startGen {
			continue
		}
		_, inStore := live[id]
		if !now.Before(s.ExpiresAt) || (s.Persisted && !inStore) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		c.untrackLocked(id)
		c.recorder.Record(ctx, domain.Event{
			Type:      domain.EventSessionDeleted,
			Timestamp: now,
			SessionID: id,
			Payload:   domain.EventPayload(map[string]string{"reason": "expired"}),
		})
	}
	if len(stale) > 0 {
		c.logger.Info("sessions reconciled", "untracked", len(stale), "tracked", len(c.order))
	}
	return len(stale), nil
}

// Tracked returns the number of tracked sessions.
func (c *Cache) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Sessions returns the tracked sessions, oldest first.
func (c *Cache) Sessions() []domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Session, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sessions[id].Session)
	}
	return out
}

// annotate records what Process stored for id. When id was evicted while
// its write was in flight, the late write is deleted and annotate reports
// false.
func (c *Cache) annotate(ctx context.Context, id, taskID string, size int, persisted bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		if persisted {
			return false, c.store.Delete(ctx, id)
		}
		return false, nil
	}
	c.gen++
	s.TaskID = taskID
	s.SizeBytes = size
	s.Persisted = persisted
	s.gen = c.gen
	return true, nil
}

func (c *Cache) untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untrackLocked(id)
}

func (c *Cache) untrackLocked(id string) bool {
	if _, ok := c.sessions[id]; !ok {
		return false
	}
	delete(c.sessions, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	return true
}
