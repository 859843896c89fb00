package domain

import "context"

// Tier is an agent's capability class. Tiers only ever move forward.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
)

// Rank orders tiers: basic < intermediate < advanced. Unknown tiers rank as basic.
func (t Tier) Rank() int {
	switch t {
	case TierIntermediate:
		return 1
	case TierAdvanced:
		return 2
	default:
		return 0
	}
}

// Next returns the tier one step above t. Advanced is terminal.
func (t Tier) Next() Tier {
	switch t {
	case TierBasic:
		return TierIntermediate
	case TierIntermediate:
		return TierAdvanced
	default:
		return TierAdvanced
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t == TierBasic || t == TierIntermediate || t == TierAdvanced
}

// ParseTier converts a user-supplied string to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", NewSubSystemError("agent", "ParseTier", ErrInvalidInput, s)
	}
	return t, nil
}

// Capability tags granted by a tier.
const (
	CapBasicTasks    = "basic-tasks"
	CapStandardTasks = "standard-tasks"
	CapComplexTasks  = "complex-tasks"
	CapCollaboration = "collaboration"
	CapLearning      = "learning"
	CapOptimization  = "optimization"
	CapDelegation    = "delegation"
)

// CapabilitiesFor returns a fresh copy of the canonical capability set for tier.
// Unknown tiers get the basic set.
func CapabilitiesFor(tier Tier) []string {
	switch tier {
	case TierAdvanced:
		return []string{CapComplexTasks, CapLearning, CapOptimization, CapDelegation}
	case TierIntermediate:
		return []string{CapStandardTasks, CapLearning, CapCollaboration}
	default:
		return []string{CapBasicTasks, CapCollaboration}
	}
}

// AgentStatus is the scheduling state of an agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentActive  AgentStatus = "active"
	AgentOffline AgentStatus = "offline"
)

// ParseAgentStatus converts a user-supplied string to an AgentStatus.
func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(s); st {
	case AgentIdle, AgentActive, AgentOffline:
		return st, nil
	}
	return "", NewSubSystemError("agent", "ParseAgentStatus", ErrInvalidInput, s)
}

// Agent is a worker in the swarm. Capabilities always equal CapabilitiesFor(Tier).
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Status       AgentStatus `json:"status"`
	Tier         Tier        `json:"type"`
	Capabilities []string    `json:"capabilities"`
	// Durable is set once the agent has been promoted; its record no longer expires.
	Durable bool `json:"durable,omitempty"`
}

// Weight is the selection score used by the assignment engine.
func (a Agent) Weight() int {
	w := len(a.Capabilities)
	if a.Tier == TierAdvanced {
		w *= 2
	}
	return w
}

// AgentKey returns the keyed-store key for an agent record.
func AgentKey(id string) string { return AgentKeyPrefix + id }

// AgentKeyPrefix prefixes every persisted agent record.
const AgentKeyPrefix = "agent:"

// PerformanceSource supplies the performance sample used for tier escalation.
// Implementations return a value in [0, 1).
type PerformanceSource interface {
	Sample(ctx context.Context, agentID string) float64
}
