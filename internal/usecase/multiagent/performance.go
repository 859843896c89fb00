package multiagent

import (
	"context"
	"math/rand/v2"
	"sync"
)

// RandomPerformance draws every sample uniformly from [0, 1).
type RandomPerformance struct{}

func (RandomPerformance) Sample(context.Context, string) float64 {
	return rand.Float64()
}

// SequencePerformance replays fixed samples in order and then keeps
// returning the last one. An empty sequence always yields 0.
type SequencePerformance struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

func NewSequencePerformance(samples ...float64) *SequencePerformance {
	return &SequencePerformance{samples: samples}
}

func (s *SequencePerformance) Sample(context.Context, string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0
	}
	v := s.samples[min(s.next, len(s.samples)-1)]
	if s.next < len(s.samples) {
		s.next++
	}
	return v
}
