package multiagent

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"agent-swarm/internal/domain"
	"agent-swarm/internal/infra/logger"
	"agent-swarm/internal/infra/tracer"
)

// Provisioner creates and promotes agents on behalf of the Assigner.
// *Registry is the production implementation.
type Provisioner interface {
	Create(ctx context.Context, tier domain.Tier) (domain.Agent, error)
	TierUp(ctx context.Context, agent domain.Agent) (domain.Agent, error)
}

// Assignment is the outcome of a successful assignment.
type Assignment struct {
	AgentID string
	// Agent is the selected agent after any promotion.
	Agent domain.Agent
	// Created is the agent spun up for this request, if any. It is not
	// necessarily the one selected.
	Created    *domain.Agent
	Complexity float64
}

// Assigner picks the agent that should run a task.
type Assigner struct {
	agents   Provisioner
	recorder domain.Recorder
	logger   *slog.Logger
}

// NewAssigner creates an Assigner. A nil recorder discards events.
func NewAssigner(agents Provisioner, recorder domain.Recorder, log *slog.Logger) *Assigner {
	if recorder == nil {
		recorder = domain.NopRecorder{}
	}
	return &Assigner{agents: agents, recorder: recorder, logger: logger.Component(log, "assigner")}
}

// Assign returns the id of the agent chosen for task. ok is false when no
// candidate is idle; that is a normal outcome, not an error. Errors come only
// from the keyed store while creating or promoting an agent.
func (a *Assigner) Assign(ctx context.Context, task domain.Task, agents []domain.Agent) (string, bool, error) {
	res, ok, err := a.AssignDetailed(ctx, task, agents)
	return res.AgentID, ok, err
}

// AssignDetailed is Assign with the full outcome.
//
// A new agent at TierFor(complexity) is created when there are no agents or
// the task scores above AdvancedThreshold. Among idle candidates, the first
// one in input order with a strictly greater weight than every earlier one
// wins, so ties keep the earliest. The winner then gets a chance to tier up.
// If the provisioner reports the winner is no longer idle, it is dropped and
// selection repeats. The caller's slice is never modified.
func (a *Assigner) AssignDetailed(ctx context.Context, task domain.Task, agents []domain.Agent) (Assignment, bool, error) {
	ctx, span := tracer.StartSpan(ctx, "multiagent.Assign")
	defer span.End()

	c := Score(task)
	res := Assignment{Complexity: c}
	span.SetAttributes(
		tracer.StringAttr("task_id", task.ID),
		tracer.Float64Attr("complexity", c),
		tracer.IntAttr("candidates", len(agents)),
	)

	candidates := make([]domain.Agent, len(agents), len(agents)+1)
	copy(candidates, agents)

	if len(agents) == 0 || c > AdvancedThreshold {
		created, err := a.agents.Create(ctx, TierFor(c))
		if err != nil {
			tracer.RecordError(span, err)
			a.logger.Error("assign: create agent failed", "task_id", task.ID, "complexity", c, "error", err)
			return res, false, domain.WrapOp("Assigner.Assign", err)
		}
		res.Created = &created
		candidates = append(candidates, created)
		span.SetAttributes(tracer.BoolAttr("created", true))
	}

	var promoted domain.Agent
	for {
		best, found := selectBest(candidates)
		if !found {
			a.logger.Debug("no idle agent available", "task_id", task.ID, "candidates", len(candidates))
			span.SetAttributes(tracer.BoolAttr("assigned", false))
			tracer.SetOK(span)
			return res, false, nil
		}

		up, err := a.agents.TierUp(ctx, best)
		if err != nil {
			tracer.RecordError(span, err)
			a.logger.Error("assign: tier up failed", "task_id", task.ID, "agent_id", best.ID, "error", err)
			return res, false, domain.WrapOp("Assigner.Assign", err)
		}
		if up.Status == domain.AgentIdle {
			promoted = up
			break
		}
		// The caller's snapshot was stale; the registry has it busy.
		a.logger.Debug("skipping agent no longer idle", "task_id", task.ID, "agent_id", up.ID, "status", up.Status)
		candidates = slices.DeleteFunc(candidates, func(c domain.Agent) bool { return c.ID == up.ID })
	}

	res.AgentID = promoted.ID
	res.Agent = promoted
	span.SetAttributes(
		tracer.BoolAttr("assigned", true),
		tracer.StringAttr("agent_id", promoted.ID),
		tracer.StringAttr("tier", string(promoted.Tier)),
	)
	tracer.SetOK(span)

	a.logger.Info("task assigned", "task_id", task.ID, "agent_id", promoted.ID, "tier", promoted.Tier, "complexity", c)
	a.recorder.Record(ctx, domain.Event{
		Type:      domain.EventAgentAssigned,
		Timestamp: time.Now(),
		AgentID:   promoted.ID,
		Payload:   domain.EventPayload(map[string]any{"task_id": task.ID, "complexity": c}),
	})
	return res, true, nil
}

// selectBest scans idle candidates in order and keeps the first one whose
// weight strictly exceeds the best so far.
func selectBest(candidates []domain.Agent) (domain.Agent, bool) {
	var best domain.Agent
	bestWeight, found := 0, false
	for _, c := range candidates {
		if c.Status != domain.AgentIdle {
			continue
		}
		if w := c.Weight(); !found || w > bestWeight {
			best, bestWeight, found = c, w, true
		}
	}
	return best, found
}
