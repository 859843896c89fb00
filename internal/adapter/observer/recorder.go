// Package observer is the swarm's observability sink: it logs domain events
// and forwards them to the event bus.
package observer

import (
	"context"
	"log/slog"
	"sync/atomic"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/logger"
)

// Recorder logs every event and publishes it on an optional bus. Record
// never fails and never panics into the caller.
type Recorder struct {
	bus    domain.EventBus
	logger *slog.Logger

	recorded atomic.Uint64
	dropped  atomic.Uint64
}

var _ domain.Recorder = (*Recorder)(nil)

// NewRecorder creates a Recorder. bus may be nil.
func NewRecorder(bus domain.EventBus, log *slog.Logger) *Recorder {
	return &Recorder{bus: bus, logger: logger.Component(log, "observer")}
}

// Record logs event at a level matching its type and publishes it.
func (r *Recorder) Record(ctx context.Context, event domain.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.dropped.Add(1)
			r.logger.Error("event recording panicked", "event", string(event.Type), "panic", p)
		}
	}()

	r.logger.Log(ctx, levelFor(event.Type), "event", attrs(event)...)
	if r.bus != nil {
		r.bus.Publish(ctx, event)
	}
	r.recorded.Add(1)
}

// Counts reports recorded events and those lost to a panicking sink.
func (r *Recorder) Counts() (recorded, dropped uint64) {
	return r.recorded.Load(), r.dropped.Load()
}

func levelFor(t domain.EventType) slog.Level {
	switch t {
	case domain.EventSessionFailed:
		return slog.LevelError
	case domain.EventSessionEvicted, domain.EventSessionSkipped:
		return slog.LevelWarn
	case domain.EventSessionDeleted:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func attrs(e domain.Event) []any {
	out := []any{"type", string(e.Type)}
	if e.AgentID != "" {
		out = append(out, "agent_id", e.AgentID)
	}
	if e.SessionID != "" {
		out = append(out, "session_id", e.SessionID)
	}
	if e.Error != "" {
		out = append(out, "error", e.Error)
	}
	if len(e.Payload) > 0 {
		out = append(out, "payload", string(e.Payload))
	}
	return out
}
