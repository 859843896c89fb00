package multiagent

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/logger"
)

// PromotionThreshold is the performance sample an agent must exceed to move
// up one tier.
const PromotionThreshold = 0.8

// DefaultAgentTTL is how long a never-promoted agent record lives in the store.
const DefaultAgentTTL = time.Hour

// RegistryOptions tunes a Registry. Zero values select defaults.
type RegistryOptions struct {
	AgentTTL time.Duration
	Recorder domain.Recorder
	Now      func() time.Time
}

type entry struct {
	agent domain.Agent
	seq   uint64 // write sequence at insert time
}

// Registry owns the swarm's agent records. Every mutation writes the keyed
// store first and updates the in-process map only on success, so the two
// never diverge. Mutations on the same agent are serialized; different
// agents proceed independently.
type Registry struct {
	store    domain.KeyedStore
	perf     domain.PerformanceSource
	ttl      time.Duration
	recorder domain.Recorder
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.RWMutex
	agents map[string]entry
	seq    uint64

	locks sync.Map // agent id -> *sync.Mutex
}

// NewRegistry creates a Registry backed by store. A nil perf source falls
// back to RandomPerformance.
func NewRegistry(store domain.KeyedStore, perf domain.PerformanceSource, opts RegistryOptions, log *slog.Logger) *Registry {
	if perf == nil {
		perf = RandomPerformance{}
	}
	if opts.AgentTTL <= 0 {
		opts.AgentTTL = DefaultAgentTTL
	}
	if opts.Recorder == nil {
		opts.Recorder = domain.NopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		store:    store,
		perf:     perf,
		ttl:      opts.AgentTTL,
		recorder: opts.Recorder,
		now:      opts.Now,
		logger:   logger.Component(log, "registry"),
		agents:   make(map[string]entry),
	}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create allocates a new idle agent at tier, persists it under agent:<id>
// with the agent TTL, and mirrors it in memory.
func (r *Registry) Create(ctx context.Context, tier domain.Tier) (domain.Agent, error) {
	if !tier.Valid() {
		return domain.Agent{}, domain.NewSubSystemError("agent", "Registry.Create", domain.ErrInvalidInput, fmt.Sprintf("tier %q", tier))
	}

	agent := domain.Agent{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("Agent-%s-%d", tier, r.now().UnixMilli()),
		Status:       domain.AgentIdle,
		Tier:         tier,
		Capabilities: domain.CapabilitiesFor(tier),
	}
	if err := r.persist(ctx, agent, r.ttl); err != nil {
		return domain.Agent{}, domain.NewSubSystemError("agent", "Registry.Create", err, domain.AgentKey(agent.ID))
	}
	r.put(agent)

	r.logger.Info("agent created", "agent_id", agent.ID, "tier", agent.Tier)
	r.recorder.Record(ctx, domain.Event{
		Type:      domain.EventAgentCreated,
		Timestamp: r.now(),
		AgentID:   agent.ID,
		Payload:   domain.EventPayload(map[string]string{"tier": string(agent.Tier), "name": agent.Name}),
	})
	return clone(agent), nil
}

// TierUp draws a performance sample for the agent and, when it exceeds
// PromotionThreshold and the agent is below advanced, promotes it one tier
// and re-persists the record without expiry. Otherwise the agent is returned
// unchanged and nothing is written.
//
// The registry's own record is the starting point, so a stale copy from the
// caller can never move the tier backwards. Agents the registry does not know,
// including removed ones, are returned unchanged and never written back.
func (r *Registry) TierUp(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	mu := r.lockFor(agent.ID)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := r.Get(agent.ID)
	if !ok {
		r.logger.Debug("tier up skipped for unknown agent", "agent_id", agent.ID)
		return clone(agent), nil
	}

	sample := r.perf.Sample(ctx, cur.ID)
	if sample <= PromotionThreshold || cur.Tier == domain.TierAdvanced {
		return clone(cur), nil
	}

	promoted := cur
	promoted.Tier = cur.Tier.Next()
	promoted.Capabilities = domain.CapabilitiesFor(promoted.Tier)
	promoted.Durable = true
	if err := r.persist(ctx, promoted, 0); err != nil {
		return clone(cur), domain.NewSubSystemError("agent", "Registry.TierUp", err, domain.AgentKey(cur.ID))
	}
	r.put(promoted)

	r.logger.Info("agent promoted", "agent_id", cur.ID, "from", cur.Tier, "tier", promoted.Tier, "sample", sample)
	r.recorder.Record(ctx, domain.Event{
		Type:      domain.EventAgentPromoted,
		Timestamp: r.now(),
		AgentID:   cur.ID,
		Payload:   domain.EventPayload(map[string]string{"from": string(cur.Tier), "to": string(promoted.Tier)}),
	})
	return clone(promoted), nil
}

// SetStatus changes an agent's scheduling status. Durable agents stay
// durable; the rest get a fresh agent TTL.
func (r *Registry) SetStatus(ctx context.Context, id string, status domain.AgentStatus) (domain.Agent, error) {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := r.Get(id)
	if !ok {
		return domain.Agent{}, domain.NewSubSystemError("agent", "Registry.SetStatus", domain.ErrNotFound, id)
	}
	if cur.Status == status {
		return cur, nil
	}

	next := cur
	next.Status = status
	ttl := r.ttl
	if next.Durable {
		ttl = 0
	}
	if err := r.persist(ctx, next, ttl); err != nil {
		return cur, domain.NewSubSystemError("agent", "Registry.SetStatus", err, domain.AgentKey(id))
	}
	r.put(next)
	r.logger.Info("agent status changed", "agent_id", id, "status", status)
	return clone(next), nil
}

// Remove deletes an agent from the store and the registry. Removing an
// unknown agent is not an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	if err := r.store.Delete(ctx, domain.AgentKey(id)); err != nil {
		return domain.NewSubSystemError("agent", "Registry.Remove", err, domain.AgentKey(id))
	}

	r.mu.Lock()
	_, known := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()
	r.locks.Delete(id)

	if known {
		r.logger.Info("agent removed", "agent_id", id)
		r.recorder.Record(ctx, domain.Event{
			Type:      domain.EventAgentRemoved,
			Timestamp: r.now(),
			AgentID:   id,
		})
	}
	return nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, false
	}
	return clone(e.agent), true
}

// List returns a snapshot of every agent, sorted by name then id.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	out := make([]domain.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, clone(e.agent))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Agent) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Len returns the number of known agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Refresh reloads every agent record from the store. Agents whose record has
// expired or been removed are dropped, unless they were written after the
// refresh began. Undecodable records are skipped with a warning. It returns
// the number of agents known afterwards.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	r.mu.RLock()
	startSeq := r.seq
	r.mu.RUnlock()

	keys, err := r.store.ListKeys(ctx, domain.AgentKeyPrefix)
	if err != nil {
		return 0, domain.NewSubSystemError("agent", "Registry.Refresh", err, domain.AgentKeyPrefix)
	}

	loaded := make(map[string]domain.Agent, len(keys))
	for _, key := range keys {
		data, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return 0, domain.NewSubSystemError("agent", "Registry.Refresh", err, key)
		}
		if !ok {
			continue // expired between list and get
		}
		var a domain.Agent
		if err := json.Unmarshal(data, &a); err != nil || a.ID == "" || !a.Tier.Valid() {
			r.logger.Warn("skipping undecodable agent record", "key", key, "error", err)
			continue
		}
		a.Capabilities = domain.CapabilitiesFor(a.Tier)
		loaded[a.ID] = a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.agents {
		if _, ok := loaded[id]; !ok && e.seq <= startSeq {
			delete(r.agents, id)
		}
	}
	for id, a := range loaded {
		if e, ok := r.agents[id]; ok && e.seq > startSeq {
			continue // written during the refresh; ours is newer
		}
		r.seq++
		r.agents[id] = entry{agent: a, seq: r.seq}
	}
	r.logger.Debug("registry refreshed", "agents", len(r.agents))
	return len(r.agents), nil
}

func (r *Registry) persist(ctx context.Context, agent domain.Agent, ttl time.Duration) error {
	data, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("marshal agent: %w", err)
	}
	return r.store.Put(ctx, domain.AgentKey(agent.ID), data, ttl)
}

func (r *Registry) put(agent domain.Agent) {
	r.mu.Lock()
	r.seq++
	r.agents[agent.ID] = entry{agent: clone(agent), seq: r.seq}
	r.mu.Unlock()
}

func clone(a domain.Agent) domain.Agent {
	a.Capabilities = slices.Clone(a.Capabilities)
	return a
}
