package multiagent

import (
	"unicode/utf8"

	"agent-swarm/internal/domain"
)

// Complexity thresholds for picking a new agent's tier.
const (
	AdvancedThreshold     = 0.7
	IntermediateThreshold = 0.3
)

// Score returns the task's complexity: 1.0 when it has dependencies, plus
// priority/10, plus title length over 100. Length counts Unicode code points,
// so an emoji or a CJK character is one. The sum is not clamped; it is
// monotonic in priority and title length.
func Score(task domain.Task) float64 {
	var c float64
	if len(task.Dependencies) > 0 {
		c += 1.0
	}
	c += task.Priority / 10.0
	c += float64(utf8.RuneCountInString(task.Title)) / 100.0
	return c
}

// TierFor maps a complexity score to the tier an agent for it should start at.
// Both thresholds are exclusive.
func TierFor(c float64) domain.Tier {
	switch {
	case c > AdvancedThreshold:
		return domain.TierAdvanced
	case c > IntermediateThreshold:
		return domain.TierIntermediate
	default:
		return domain.TierBasic
	}
}
