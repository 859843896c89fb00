package domain

// ResourceEstimate holds load proxies derived from the agent and task sets.
// These are not measured system metrics.
type ResourceEstimate struct {
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryUsage float64 `json:"memoryUsage"`
	Efficiency  float64 `json:"resourceEfficiency"`
}
