package rpcpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaidn/palaidn/validator/config"
)

type fakeClient struct {
	mu      sync.Mutex
	url     string
	pingErr error
	closed  bool
}

func (c *fakeClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testPoolConfig() config.RPCPoolConfig {
	return config.RPCPoolConfig{
		HealthCheckIntervalSeconds: 30,
		UnhealthyThreshold:         3,
		RecoveryIntervalSeconds:    300,
		MinHealthyEndpoints:        1,
		RequestTimeoutSeconds:      5,
		LoadBalancingStrategy:      "round-robin",
	}
}

func fakeFactory(failing map[string]bool) ClientFactory {
	return func(url string) (Client, error) {
		if failing[url] {
			return nil, assert.AnError
		}
		return &fakeClient{url: url}, nil
	}
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name        string
		urls        []string
		expectedNil bool
	}{
		{name: "valid configuration", urls: []string{"ledger-a:9944", "ledger-b:9944"}},
		{name: "empty URLs returns nil", urls: nil, expectedNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("ledger", tt.urls, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
			if tt.expectedNil {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, "ledger", m.Name())
			assert.Len(t, m.GetEndpoints(), len(tt.urls))
		})
	}
}

func TestManager_Start(t *testing.T) {
	t.Run("all endpoints dial", func(t *testing.T) {
		m := NewManager("ledger", []string{"a", "b"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
		require.NoError(t, m.Start(context.Background()))
		defer m.Stop()

		assert.Equal(t, 2, m.GetHealthyEndpointCount())
		for _, ep := range m.GetEndpoints() {
			assert.NotNil(t, ep.GetClient())
		}
	})

	t.Run("failed dial marks endpoint unhealthy", func(t *testing.T) {
		m := NewManager("ledger", []string{"a", "b"}, testPoolConfig(), fakeFactory(map[string]bool{"b": true}), zerolog.Nop())
		require.NoError(t, m.Start(context.Background()))
		defer m.Stop()

		assert.Equal(t, 1, m.GetHealthyEndpointCount())
		assert.Equal(t, StateUnhealthy, m.GetEndpoints()[1].GetState())
	})

	t.Run("too few healthy endpoints", func(t *testing.T) {
		cfg := testPoolConfig()
		cfg.MinHealthyEndpoints = 2
		m := NewManager("ledger", []string{"a", "b"}, cfg, fakeFactory(map[string]bool{"a": true}), zerolog.Nop())
		err := m.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient healthy endpoints")
	})
}

func TestManager_StopClosesClients(t *testing.T) {
	m := NewManager("ledger", []string{"a"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
	require.NoError(t, m.Start(context.Background()))

	client := m.GetEndpoints()[0].GetClient().(*fakeClient)
	m.Stop()
	m.Stop()

	assert.True(t, client.isClosed())
	assert.Nil(t, m.GetEndpoints()[0].GetClient())
}

func TestManager_SelectEndpoint(t *testing.T) {
	m := NewManager("ledger", []string{"a", "b", "c"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		ep, err := m.SelectEndpoint()
		require.NoError(t, err)
		seen[ep.URL]++
		assert.False(t, ep.LastUsed().IsZero())
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 2, "c": 2}, seen)

	for _, ep := range m.GetEndpoints() {
		ep.UpdateState(StateExcluded)
	}
	_, err := m.SelectEndpoint()
	assert.ErrorIs(t, err, ErrNoHealthyEndpoint)
}

func TestManager_UpdateEndpointMetrics(t *testing.T) {
	m := NewManager("ledger", []string{"a"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
	ep := m.GetEndpoints()[0]

	t.Run("consecutive failures exclude the endpoint", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			m.UpdateEndpointMetrics(ep, false, 10*time.Millisecond, assert.AnError)
		}
		assert.Equal(t, StateExcluded, ep.GetState())
		assert.Equal(t, 3, ep.Metrics().GetConsecutiveFailures())
	})

	t.Run("degraded endpoint is promoted after successes", func(t *testing.T) {
		ep.ResetMetrics(100)
		ep.UpdateState(StateDegraded)
		for i := 0; i < 5; i++ {
			m.UpdateEndpointMetrics(ep, true, 10*time.Millisecond, nil)
		}
		assert.Equal(t, StateHealthy, ep.GetState())
	})

	t.Run("low success rate degrades a healthy endpoint", func(t *testing.T) {
		ep.ResetMetrics(100)
		ep.UpdateState(StateHealthy)
		m.UpdateEndpointMetrics(ep, true, time.Millisecond, nil)
		m.UpdateEndpointMetrics(ep, false, time.Millisecond, assert.AnError)
		m.UpdateEndpointMetrics(ep, true, time.Millisecond, nil)
		m.UpdateEndpointMetrics(ep, false, time.Millisecond, assert.AnError)
		m.UpdateEndpointMetrics(ep, false, time.Millisecond, assert.AnError)
		assert.Equal(t, StateDegraded, ep.GetState())
	})
}

func TestManager_Redial(t *testing.T) {
	m := NewManager("ledger", []string{"a"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ep := m.GetEndpoints()[0]
	old := ep.GetClient().(*fakeClient)

	fresh, err := m.Redial(ep)
	require.NoError(t, err)
	assert.True(t, old.isClosed())
	assert.NotSame(t, old, fresh)
	assert.Same(t, fresh, ep.GetClient())
}

func TestManager_Stats(t *testing.T) {
	m := NewManager("ledger", []string{"a", "b"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
	eps := m.GetEndpoints()
	m.UpdateEndpointMetrics(eps[0], true, 20*time.Millisecond, nil)
	m.UpdateEndpointMetrics(eps[1], false, 0, assert.AnError)
	eps[1].UpdateState(StateExcluded)

	stats := m.Stats()
	assert.Equal(t, "ledger", stats.Name)
	assert.Equal(t, "round-robin", stats.Strategy)
	assert.Equal(t, 2, stats.TotalEndpoints)
	assert.Equal(t, 1, stats.HealthyCount)
	assert.Equal(t, 1, stats.ExcludedCount)
	assert.Equal(t, int64(20), stats.Endpoints[0].AverageLatencyMs)
	assert.Equal(t, assert.AnError.Error(), stats.Endpoints[1].LastError)
}
