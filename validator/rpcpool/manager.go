// Package rpcpool keeps a set of ledger endpoints, tracks their health and
// picks one for each (re)connection.
package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/palaidn/palaidn/validator/config"
)

// ErrNoHealthyEndpoint is returned when every endpoint is unhealthy or excluded.
var ErrNoHealthyEndpoint = errors.New("no healthy endpoints available")

// Manager manages a pool of ledger endpoints with load balancing and health checking
type Manager struct {
	name          string
	endpoints     []*Endpoint
	selector      *EndpointSelector
	config        config.RPCPoolConfig
	logger        zerolog.Logger
	monitor       *HealthMonitor
	clientFactory ClientFactory

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a pool manager. It returns nil when no URL is given.
func NewManager(
	name string,
	urls []string,
	poolConfig config.RPCPoolConfig,
	clientFactory ClientFactory,
	logger zerolog.Logger,
) *Manager {
	if len(urls) == 0 {
		logger.Warn().Str("pool", name).Msg("no endpoint URLs provided for pool")
		return nil
	}

	endpoints := make([]*Endpoint, len(urls))
	for i, url := range urls {
		endpoints[i] = NewEndpoint(url)
	}

	m := &Manager{
		name:          name,
		endpoints:     endpoints,
		selector:      NewEndpointSelector(LoadBalancingStrategy(poolConfig.LoadBalancingStrategy)),
		config:        poolConfig,
		logger:        logger.With().Str("component", "rpc_pool").Str("pool", name).Logger(),
		clientFactory: clientFactory,
	}
	m.monitor = NewHealthMonitor(m, logger)
	return m
}

// SetHealthChecker replaces the default ping checker.
func (m *Manager) SetHealthChecker(checker HealthChecker) {
	m.monitor.SetHealthChecker(checker)
}

// Start dials every endpoint and starts the health monitor.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info().
		Int("endpoint_count", len(m.endpoints)).
		Str("strategy", string(m.selector.GetStrategy())).
		Msg("starting rpc pool")

	for _, ep := range m.endpoints {
		if err := m.dial(ep); err != nil {
			m.logger.Warn().Str("url", ep.URL).Err(err).Msg("failed to initialize endpoint")
			ep.UpdateState(StateUnhealthy)
		}
	}

	healthy := m.GetHealthyEndpointCount()
	if healthy < m.config.MinHealthyEndpoints {
		return errors.Errorf("insufficient healthy endpoints: %d/%d (minimum: %d)",
			healthy, len(m.endpoints), m.config.MinHealthyEndpoints)
	}

	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.monitor.Run(ctx, &m.wg)
	})

	m.logger.Info().
		Int("healthy_endpoints", healthy).
		Int("total_endpoints", len(m.endpoints)).
		Msg("rpc pool started")
	return nil
}

// Stop stops the health monitor and closes every client.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.monitor.Stop()
		m.wg.Wait()

		for _, ep := range m.endpoints {
			if client := ep.GetClient(); client != nil {
				if err := client.Close(); err != nil {
					m.logger.Warn().Str("url", ep.URL).Err(err).Msg("failed to close client connection")
				}
				ep.SetClient(nil)
			}
		}
		m.logger.Info().Msg("rpc pool stopped")
	})
}

func (m *Manager) dial(ep *Endpoint) error {
	client, err := m.clientFactory(ep.URL)
	if err != nil {
		return errors.Wrapf(err, "failed to create client for %s", ep.URL)
	}
	ep.SetClient(client)
	ep.UpdateState(StateHealthy)
	m.logger.Debug().Str("url", ep.URL).Msg("endpoint initialized")
	return nil
}

// Redial closes the endpoint's client and dials a fresh one.
func (m *Manager) Redial(ep *Endpoint) (Client, error) {
	if old := ep.GetClient(); old != nil {
		if err := old.Close(); err != nil {
			m.logger.Debug().Str("url", ep.URL).Err(err).Msg("closing stale client failed")
		}
		ep.SetClient(nil)
	}
	if err := m.dial(ep); err != nil {
		m.UpdateEndpointMetrics(ep, false, 0, err)
		return nil, err
	}
	return ep.GetClient(), nil
}

// SelectEndpoint picks a healthy endpoint using the configured strategy
func (m *Manager) SelectEndpoint() (*Endpoint, error) {
	selected := m.selector.SelectEndpoint(m.healthyEndpoints())
	if selected == nil {
		return nil, ErrNoHealthyEndpoint
	}
	selected.touch()
	return selected, nil
}

func (m *Manager) healthyEndpoints() []*Endpoint {
	healthy := make([]*Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		if ep.IsHealthy() {
			healthy = append(healthy, ep)
		}
	}
	return healthy
}

// GetHealthyEndpointCount returns the count of usable endpoints
func (m *Manager) GetHealthyEndpointCount() int {
	return len(m.healthyEndpoints())
}

// GetEndpoints returns a copy of the endpoint list
func (m *Manager) GetEndpoints() []*Endpoint {
	out := make([]*Endpoint, len(m.endpoints))
	copy(out, m.endpoints)
	return out
}

// UpdateEndpointMetrics records a call outcome and moves the endpoint between states.
func (m *Manager) UpdateEndpointMetrics(ep *Endpoint, success bool, latency time.Duration, err error) {
	metrics := ep.Metrics()
	if success {
		metrics.RecordSuccess(latency)
		if ep.GetState() == StateDegraded && metrics.GetSuccessRate() > 0.8 {
			ep.UpdateState(StateHealthy)
			m.logger.Info().
				Str("url", ep.URL).
				Float64("success_rate", metrics.GetSuccessRate()).
				Msg("endpoint promoted to healthy")
		}
		return
	}

	metrics.RecordFailure(err, latency)
	failures := metrics.GetConsecutiveFailures()
	switch {
	case failures >= m.config.UnhealthyThreshold:
		if ep.GetState() != StateExcluded {
			ep.UpdateState(StateExcluded)
			m.logger.Warn().
				Str("url", ep.URL).
				Int("consecutive_failures", failures).
				Err(err).
				Msg("endpoint excluded due to consecutive failures")
		}
	case metrics.GetSuccessRate() < 0.5 && ep.GetState() == StateHealthy:
		ep.UpdateState(StateDegraded)
		m.logger.Warn().
			Str("url", ep.URL).
			Float64("success_rate", metrics.GetSuccessRate()).
			Msg("endpoint downgraded to degraded")
	}
}

// Stats returns a summary of every endpoint in the pool
func (m *Manager) Stats() PoolStats {
	stats := PoolStats{
		Name:           m.name,
		Strategy:       string(m.selector.GetStrategy()),
		TotalEndpoints: len(m.endpoints),
		Endpoints:      make([]EndpointInfo, len(m.endpoints)),
	}

	for i, ep := range m.endpoints {
		state := ep.GetState()
		switch state {
		case StateHealthy:
			stats.HealthyCount++
		case StateDegraded:
			stats.DegradedCount++
		case StateUnhealthy:
			stats.UnhealthyCount++
		case StateExcluded:
			stats.ExcludedCount++
		}

		metrics := ep.Metrics()
		metrics.mu.RLock()
		info := EndpointInfo{
			URL:                 ep.URL,
			State:               state.String(),
			HealthScore:         metrics.HealthScore,
			LastUsed:            ep.LastUsed(),
			RequestCount:        metrics.TotalRequests,
			FailureCount:        metrics.FailedRequests,
			ConsecutiveFailures: metrics.ConsecutiveFailures,
			AverageLatencyMs:    metrics.AverageLatency.Milliseconds(),
		}
		if metrics.LastError != nil {
			info.LastError = metrics.LastError.Error()
		}
		metrics.mu.RUnlock()
		stats.Endpoints[i] = info
	}
	return stats
}

// Name returns the pool name
func (m *Manager) Name() string {
	return m.name
}
