package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// recoveredScore is the health score an endpoint restarts with after exclusion
const recoveredScore = 70.0

// HealthMonitor periodically checks endpoints and readmits excluded ones
type HealthMonitor struct {
	manager *Manager
	logger  zerolog.Logger

	mu       sync.RWMutex
	checker  HealthChecker
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHealthMonitor creates a monitor that uses PingChecker until told otherwise
func NewHealthMonitor(manager *Manager, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		manager: manager,
		logger:  logger.With().Str("component", "health_monitor").Str("pool", manager.name).Logger(),
		checker: PingChecker{},
		stopCh:  make(chan struct{}),
	}
}

// SetHealthChecker sets the health checker implementation
func (h *HealthMonitor) SetHealthChecker(checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checker = checker
}

func (h *HealthMonitor) healthChecker() HealthChecker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.checker
}

// Run checks all endpoints on every tick until the context ends or Stop is called
func (h *HealthMonitor) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := h.manager.config.HealthCheckInterval()
	h.logger.Info().Dur("interval", interval).Msg("starting health monitor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// Stop stops the monitor loop
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// CheckAll runs one health check round over every endpoint concurrently
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ep := range h.manager.GetEndpoints() {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			h.check(ctx, ep)
		}(ep)
	}
	wg.Wait()
}

func (h *HealthMonitor) check(ctx context.Context, ep *Endpoint) {
	checker := h.healthChecker()
	if checker == nil {
		return
	}

	client := ep.GetClient()
	if client == nil {
		// Endpoints that failed to dial get another dial attempt once their recovery interval passes.
		if ep.GetState() == StateUnhealthy || ep.GetState() == StateExcluded {
			h.tryRedial(ctx, ep, checker)
		}
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.manager.config.RequestTimeout())
	defer cancel()

	start := time.Now()
	err := checker.CheckHealth(checkCtx, client)
	latency := time.Since(start)

	if ep.GetState() == StateExcluded || ep.GetState() == StateUnhealthy {
		h.handleRecovery(ep, err, latency)
		return
	}

	h.manager.UpdateEndpointMetrics(ep, err == nil, latency, err)
	if err != nil {
		h.logger.Warn().
			Str("url", ep.URL).
			Dur("latency", latency).
			Int("consecutive_failures", ep.Metrics().GetConsecutiveFailures()).
			Err(err).
			Msg("endpoint health check failed")
	}
}

func (h *HealthMonitor) tryRedial(ctx context.Context, ep *Endpoint, checker HealthChecker) {
	if time.Since(ep.ExcludedSince()) < h.manager.config.RecoveryInterval() {
		return
	}
	client, err := h.manager.clientFactory(ep.URL)
	if err != nil {
		ep.markExcludedNow()
		h.logger.Debug().Str("url", ep.URL).Err(err).Msg("endpoint still unreachable")
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, h.manager.config.RequestTimeout())
	defer cancel()
	if err := checker.CheckHealth(checkCtx, client); err != nil {
		_ = client.Close()
		ep.markExcludedNow()
		return
	}
	ep.SetClient(client)
	h.readmit(ep, 0)
}

// handleRecovery readmits an excluded endpoint after a passing check once the recovery interval elapsed.
func (h *HealthMonitor) handleRecovery(ep *Endpoint, err error, latency time.Duration) {
	if time.Since(ep.ExcludedSince()) < h.manager.config.RecoveryInterval() {
		return
	}
	if err != nil {
		ep.markExcludedNow()
		h.logger.Warn().Str("url", ep.URL).Err(err).Msg("endpoint recovery failed, extending exclusion period")
		return
	}
	h.readmit(ep, latency)
}

func (h *HealthMonitor) readmit(ep *Endpoint, latency time.Duration) {
	ep.ResetMetrics(recoveredScore)
	ep.UpdateState(StateDegraded)
	h.logger.Info().
		Str("url", ep.URL).
		Dur("recovery_latency", latency).
		Msg("endpoint recovered, promoted to degraded state")
}

// ForceExclude excludes an endpoint by URL
func (h *HealthMonitor) ForceExclude(url string) error {
	for _, ep := range h.manager.GetEndpoints() {
		if ep.URL == url {
			ep.UpdateState(StateExcluded)
			return nil
		}
	}
	return errors.Errorf("endpoint not found: %s", url)
}
