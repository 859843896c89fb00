package multiagent

import "agent-swarm/internal/domain"

// Estimate derives load proxies from the agent and task sets:
//
//	cpuUsage    = active/agents * 100
//	memoryUsage = tasks/(agents*3) * 100
//	efficiency  = 1 - active/agents
//
// With no agents every figure is 0.
func Estimate(agents []domain.Agent, tasks []domain.Task) domain.ResourceEstimate {
	if len(agents) == 0 {
		return domain.ResourceEstimate{}
	}
	var active int
	for _, a := range agents {
		if a.Status == domain.AgentActive {
			active++
		}
	}
	n := float64(len(agents))
	load := float64(active) / n
	return domain.ResourceEstimate{
		CPUUsage:    load * 100,
		MemoryUsage: float64(len(tasks)) / (n * 3) * 100,
		Efficiency:  1 - load,
	}
}
