package rpcpool

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context, client Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func TestHealthMonitor_CheckAll(t *testing.T) {
	cfg := testPoolConfig()
	m := NewManager("ledger", []string{"a", "b"}, cfg, fakeFactory(nil), zerolog.Nop())
	for _, ep := range m.GetEndpoints() {
		require.NoError(t, m.dial(ep))
	}
	eps := m.GetEndpoints()

	checker := &MockHealthChecker{}
	checker.On("CheckHealth", mock.Anything, eps[0].GetClient()).Return(nil)
	checker.On("CheckHealth", mock.Anything, eps[1].GetClient()).Return(assert.AnError)
	m.SetHealthChecker(checker)

	for i := 0; i < cfg.UnhealthyThreshold; i++ {
		m.monitor.CheckAll(context.Background())
	}

	assert.Equal(t, StateHealthy, eps[0].GetState())
	assert.Equal(t, StateExcluded, eps[1].GetState())
	checker.AssertNumberOfCalls(t, "CheckHealth", 2*cfg.UnhealthyThreshold)
}

func TestHealthMonitor_DefaultPingChecker(t *testing.T) {
	m := NewManager("ledger", []string{"a"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
	ep := m.GetEndpoints()[0]
	client := &fakeClient{pingErr: assert.AnError}
	ep.SetClient(client)

	m.monitor.CheckAll(context.Background())

	assert.Equal(t, 1, ep.Metrics().GetConsecutiveFailures())
	assert.ErrorIs(t, ep.Metrics().GetLastError(), assert.AnError)
}

func TestHealthMonitor_Recovery(t *testing.T) {
	cfg := testPoolConfig()
	cfg.RecoveryIntervalSeconds = 0

	t.Run("passing check readmits excluded endpoint as degraded", func(t *testing.T) {
		m := NewManager("ledger", []string{"a"}, cfg, fakeFactory(nil), zerolog.Nop())
		ep := m.GetEndpoints()[0]
		ep.SetClient(&fakeClient{})
		ep.UpdateState(StateExcluded)

		m.monitor.CheckAll(context.Background())

		assert.Equal(t, StateDegraded, ep.GetState())
		assert.Equal(t, recoveredScore, ep.Metrics().GetHealthScore())
	})

	t.Run("failing check keeps endpoint excluded", func(t *testing.T) {
		m := NewManager("ledger", []string{"a"}, cfg, fakeFactory(nil), zerolog.Nop())
		ep := m.GetEndpoints()[0]
		ep.SetClient(&fakeClient{pingErr: assert.AnError})
		ep.UpdateState(StateExcluded)
		before := ep.ExcludedSince()

		time.Sleep(time.Millisecond)
		m.monitor.CheckAll(context.Background())

		assert.Equal(t, StateExcluded, ep.GetState())
		assert.True(t, ep.ExcludedSince().After(before))
	})

	t.Run("recovery waits for the interval", func(t *testing.T) {
		m := NewManager("ledger", []string{"a"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())
		ep := m.GetEndpoints()[0]
		ep.SetClient(&fakeClient{})
		ep.UpdateState(StateExcluded)

		m.monitor.CheckAll(context.Background())

		assert.Equal(t, StateExcluded, ep.GetState())
	})

	t.Run("undialed endpoint is dialed again", func(t *testing.T) {
		m := NewManager("ledger", []string{"a"}, cfg, fakeFactory(nil), zerolog.Nop())
		ep := m.GetEndpoints()[0]
		ep.UpdateState(StateUnhealthy)

		m.monitor.CheckAll(context.Background())

		assert.NotNil(t, ep.GetClient())
		assert.Equal(t, StateDegraded, ep.GetState())
	})
}

func TestHealthMonitor_ForceExclude(t *testing.T) {
	m := NewManager("ledger", []string{"a"}, testPoolConfig(), fakeFactory(nil), zerolog.Nop())

	require.NoError(t, m.monitor.ForceExclude("a"))
	assert.Equal(t, StateExcluded, m.GetEndpoints()[0].GetState())
	assert.Error(t, m.monitor.ForceExclude("missing"))
}
