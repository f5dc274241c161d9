package rpcpool

import (
	"math/rand"
	"sync/atomic"
)

// LoadBalancingStrategy defines how the connector picks the next ledger endpoint
type LoadBalancingStrategy string

const (
	StrategyRoundRobin LoadBalancingStrategy = "round-robin"
	StrategyWeighted   LoadBalancingStrategy = "weighted"
)

// EndpointSelector picks an endpoint according to a strategy
type EndpointSelector struct {
	strategy LoadBalancingStrategy
	next     atomic.Uint32
	rnd      func() float64
}

// NewEndpointSelector creates a selector; unknown strategies fall back to round-robin
func NewEndpointSelector(strategy LoadBalancingStrategy) *EndpointSelector {
	if strategy != StrategyRoundRobin && strategy != StrategyWeighted {
		strategy = StrategyRoundRobin
	}
	return &EndpointSelector{
		strategy: strategy,
		rnd:      rand.Float64,
	}
}

// SelectEndpoint picks one of the given healthy endpoints, nil if there are none
func (s *EndpointSelector) SelectEndpoint(healthy []*Endpoint) *Endpoint {
	switch {
	case len(healthy) == 0:
		return nil
	case len(healthy) == 1:
		return healthy[0]
	case s.strategy == StrategyWeighted:
		return s.selectWeighted(healthy)
	default:
		return s.selectRoundRobin(healthy)
	}
}

func (s *EndpointSelector) selectRoundRobin(endpoints []*Endpoint) *Endpoint {
	idx := (s.next.Add(1) - 1) % uint32(len(endpoints))
	return endpoints[idx]
}

// selectWeighted draws an endpoint with probability proportional to its health score
func (s *EndpointSelector) selectWeighted(endpoints []*Endpoint) *Endpoint {
	total := 0.0
	for _, ep := range endpoints {
		total += ep.Metrics().GetHealthScore()
	}
	if total == 0 {
		return s.selectRoundRobin(endpoints)
	}

	target := s.rnd() * total
	acc := 0.0
	for _, ep := range endpoints {
		acc += ep.Metrics().GetHealthScore()
		if acc >= target {
			return ep
		}
	}
	return endpoints[len(endpoints)-1]
}

// GetStrategy returns the current strategy
func (s *EndpointSelector) GetStrategy() LoadBalancingStrategy {
	return s.strategy
}
