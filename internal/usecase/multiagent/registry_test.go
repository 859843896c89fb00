package multiagent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-swarm/internal/domain"
)

var errDown = errors.New("connection reset")

func newTestRegistry(store domain.KeyedStore, perf domain.PerformanceSource, rec domain.Recorder) *Registry {
	return NewRegistry(store, perf, RegistryOptions{
		Recorder: rec,
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	}, nil)
}

func TestRegistry_Create(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	r := newTestRegistry(store, NewSequencePerformance(), rec)

	a, err := r.Create(context.Background(), domain.TierIntermediate)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "Agent-intermediate-1700000000000", a.Name)
	assert.Equal(t, domain.AgentIdle, a.Status)
	assert.Equal(t, domain.TierIntermediate, a.Tier)
	assert.Equal(t, domain.CapabilitiesFor(domain.TierIntermediate), a.Capabilities)
	assert.False(t, a.Durable)

	put := store.lastPut()
	assert.Equal(t, "agent:"+a.ID, put.key)
	assert.Equal(t, time.Hour, put.ttl)

	var stored domain.Agent
	require.NoError(t, json.Unmarshal(store.data[put.key], &stored))
	assert.Equal(t, a, stored)

	got, ok := r.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, got)
	assert.Equal(t, []domain.EventType{domain.EventAgentCreated}, rec.types())
}

func TestRegistry_CreateUniqueIDs(t *testing.T) {
	r := newTestRegistry(newFakeStore(), nil, nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		a, err := r.Create(context.Background(), domain.TierBasic)
		require.NoError(t, err)
		assert.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true
	}
	assert.Equal(t, 50, r.Len())
}

func TestRegistry_CreateCustomTTL(t *testing.T) {
	store := newFakeStore()
	r := NewRegistry(store, nil, RegistryOptions{AgentTTL: 10 * time.Minute}, nil)

	_, err := r.Create(context.Background(), domain.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, store.lastPut().ttl)
}

func TestRegistry_CreateStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failPut = domain.ErrStoreUnavailable
	rec := &fakeRecorder{}
	r := newTestRegistry(store, nil, rec)

	_, err := r.Create(context.Background(), domain.TierBasic)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.CodeStoreUnavailable, domain.ErrorCodeOf(err))
	assert.Zero(t, r.Len(), "map must not hold an unpersisted agent")
	assert.Empty(t, rec.types())
}

func TestRegistry_CreateInvalidTier(t *testing.T) {
	r := newTestRegistry(newFakeStore(), nil, nil)
	_, err := r.Create(context.Background(), domain.Tier("legendary"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_TierUpPromotes(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	r := newTestRegistry(store, NewSequencePerformance(0.81), rec)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)

	up, err := r.TierUp(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a.ID, up.ID)
	assert.Equal(t, domain.TierIntermediate, up.Tier)
	assert.Equal(t, domain.CapabilitiesFor(domain.TierIntermediate), up.Capabilities)
	assert.True(t, up.Durable)

	put := store.lastPut()
	assert.Equal(t, domain.AgentKey(a.ID), put.key)
	assert.Equal(t, time.Duration(0), put.ttl, "promoted record must not expire")

	got, _ := r.Get(a.ID)
	assert.Equal(t, up, got)
	assert.Equal(t, []domain.EventType{domain.EventAgentCreated, domain.EventAgentPromoted}, rec.types())
}

func TestRegistry_TierUpThresholdIsExclusive(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.8, 0.5, 0.0), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)
	writes := store.putCount()

	for i := 0; i < 3; i++ {
		got, err := r.TierUp(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	assert.Equal(t, writes, store.putCount(), "no write when the sample does not cross the threshold")
}

func TestRegistry_TierUpAdvancedIsTerminal(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.99), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierAdvanced)
	require.NoError(t, err)
	writes := store.putCount()

	got, err := r.TierUp(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, domain.TierAdvanced, got.Tier)
	assert.Equal(t, writes, store.putCount())
}

func TestRegistry_TierNeverRegresses(t *testing.T) {
	samples := []float64{0.9, 0.1, 0.95, 0.99, 0.2, 0.85, 0.3}
	r := newTestRegistry(newFakeStore(), NewSequencePerformance(samples...), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)
	stale := a

	prev := a.Tier.Rank()
	for range samples {
		// Always pass the original, stale copy.
		got, err := r.TierUp(ctx, stale)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Tier.Rank(), prev)
		assert.Equal(t, domain.CapabilitiesFor(got.Tier), got.Capabilities)
		prev = got.Tier.Rank()
	}
	assert.Equal(t, domain.TierAdvanced.Rank(), prev)
}

func TestRegistry_TierUpStoreFailureLeavesMapUnchanged(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.9), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)

	store.failPut = domain.ErrStoreTimeout
	got, err := r.TierUp(ctx, a)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)
	assert.Equal(t, domain.TierBasic, got.Tier)

	inMap, _ := r.Get(a.ID)
	assert.Equal(t, domain.TierBasic, inMap.Tier)

	var stored domain.Agent
	require.NoError(t, json.Unmarshal(store.data[domain.AgentKey(a.ID)], &stored))
	assert.Equal(t, domain.TierBasic, stored.Tier)
}

func TestRegistry_ConcurrentTierUpSameAgent(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.9), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.TierUp(ctx, a)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	inMap, _ := r.Get(a.ID)
	var stored domain.Agent
	require.NoError(t, json.Unmarshal(store.data[domain.AgentKey(a.ID)], &stored))
	assert.Equal(t, domain.TierAdvanced, inMap.Tier)
	assert.Equal(t, inMap, stored, "map and store must agree")
	// Create plus exactly two promotions.
	assert.Equal(t, 3, store.putCount())
}

func TestRegistry_SetStatus(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.9), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)

	got, err := r.SetStatus(ctx, a.ID, domain.AgentActive)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentActive, got.Status)
	assert.Equal(t, time.Hour, store.lastPut().ttl)

	_, err = r.TierUp(ctx, got)
	require.NoError(t, err)
	_, err = r.SetStatus(ctx, a.ID, domain.AgentOffline)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), store.lastPut().ttl, "durable agents stay durable")

	writes := store.putCount()
	_, err = r.SetStatus(ctx, a.ID, domain.AgentOffline)
	require.NoError(t, err)
	assert.Equal(t, writes, store.putCount(), "unchanged status is not rewritten")

	_, err = r.SetStatus(ctx, "nope", domain.AgentIdle)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_RemoveAndList(t *testing.T) {
	store := newFakeStore()
	rec := &fakeRecorder{}
	r := newTestRegistry(store, nil, rec)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		a, err := r.Create(ctx, domain.TierBasic)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	list := r.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		// Same name (frozen clock), so ordering falls back to id.
		assert.Less(t, list[i-1].ID, list[i].ID)
	}

	require.NoError(t, r.Remove(ctx, ids[0]))
	require.NoError(t, r.Remove(ctx, ids[0]), "removing twice is fine")
	require.NoError(t, r.Remove(ctx, "unknown"))

	_, ok := r.Get(ids[0])
	assert.False(t, ok)
	_, ok = store.data[domain.AgentKey(ids[0])]
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())

	removed := 0
	for _, ty := range rec.types() {
		if ty == domain.EventAgentRemoved {
			removed++
		}
	}
	assert.Equal(t, 1, removed)
}

func TestRegistry_ListReturnsCopies(t *testing.T) {
	r := newTestRegistry(newFakeStore(), nil, nil)
	a, err := r.Create(context.Background(), domain.TierBasic)
	require.NoError(t, err)

	list := r.List()
	list[0].Capabilities[0] = "hacked"
	list[0].Tier = domain.TierAdvanced

	got, _ := r.Get(a.ID)
	assert.Equal(t, domain.TierBasic, got.Tier)
	assert.Equal(t, domain.CapBasicTasks, got.Capabilities[0])
}

func TestRegistry_Refresh(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	writer := newTestRegistry(store, nil, nil)
	a, err := writer.Create(ctx, domain.TierBasic)
	require.NoError(t, err)
	b, err := writer.Create(ctx, domain.TierAdvanced)
	require.NoError(t, err)

	store.data["agent:garbage"] = []byte("{not json")
	store.data["agent:badtier"] = []byte(`{"id":"badtier","type":"mythic"}`)
	// Tampered capabilities are restored from the tier.
	store.data[domain.AgentKey(b.ID)] = []byte(strings.Replace(string(store.data[domain.AgentKey(b.ID)]), "delegation", "world-domination", 1))

	reader := newTestRegistry(store, nil, nil)
	n, err := reader.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := reader.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, domain.CapabilitiesFor(domain.TierAdvanced), got.Capabilities)

	// Expire a in the store; the next refresh drops it.
	delete(store.data, domain.AgentKey(a.ID))
	n, err = reader.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok = reader.Get(a.ID)
	assert.False(t, ok)
}

func TestRegistry_RefreshStoreFailure(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, nil, nil)
	_, err := r.Create(context.Background(), domain.TierBasic)
	require.NoError(t, err)

	store.failGet = errDown
	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1, r.Len(), "failed refresh keeps the current view")
}

func TestRegistry_TierUpAfterRemoveDoesNotResurrect(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.99), nil)
	ctx := context.Background()

	a, err := r.Create(ctx, domain.TierBasic)
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, a.ID))
	_, held := r.locks.Load(a.ID)
	assert.False(t, held, "lock entry is released on remove")
	writes := store.putCount()

	got, err := r.TierUp(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.Equal(t, writes, store.putCount())
	_, ok := store.data[domain.AgentKey(a.ID)]
	assert.False(t, ok)
	_, ok = r.Get(a.ID)
	assert.False(t, ok)
}

func TestRegistry_TierUpUnknownAgent(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store, NewSequencePerformance(0.99), nil)

	stranger := domain.Agent{ID: "not-registered", Tier: domain.TierBasic, Status: domain.AgentIdle}
	got, err := r.TierUp(context.Background(), stranger)
	require.NoError(t, err)
	assert.Equal(t, stranger, got)
	assert.Zero(t, store.putCount())
}
