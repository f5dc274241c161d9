package rpcpool

import (
	"sync"
	"time"
)

// EndpointState represents the current state of a ledger endpoint
type EndpointState int

const (
	StateHealthy EndpointState = iota
	StateDegraded
	StateUnhealthy
	StateExcluded
)

func (s EndpointState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	case StateExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// EndpointMetrics tracks request outcomes for an endpoint
type EndpointMetrics struct {
	mu                  sync.RWMutex
	TotalRequests       uint64
	SuccessfulRequests  uint64
	FailedRequests      uint64
	AverageLatency      time.Duration
	ConsecutiveFailures int
	LastSuccessTime     time.Time
	LastErrorTime       time.Time
	LastError           error
	HealthScore         float64 // 0-100
}

func newEndpointMetrics(score float64) *EndpointMetrics {
	return &EndpointMetrics{HealthScore: score}
}

// RecordSuccess updates metrics for a successful request
func (m *EndpointMetrics) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.SuccessfulRequests++
	m.ConsecutiveFailures = 0
	m.LastSuccessTime = time.Now()
	m.observeLatency(latency)
	m.recalculate()
}

// RecordFailure updates metrics for a failed request
func (m *EndpointMetrics) RecordFailure(err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.FailedRequests++
	m.ConsecutiveFailures++
	m.LastErrorTime = time.Now()
	m.LastError = err
	if m.AverageLatency > 0 {
		m.observeLatency(latency)
	}
	m.recalculate()
}

// observeLatency folds latency into a moving average with weight 0.1.
func (m *EndpointMetrics) observeLatency(latency time.Duration) {
	if latency <= 0 {
		return
	}
	if m.AverageLatency == 0 {
		m.AverageLatency = latency
		return
	}
	m.AverageLatency = time.Duration(float64(m.AverageLatency)*0.9 + float64(latency)*0.1)
}

// recalculate derives the health score from success rate, latency and failure streak.
func (m *EndpointMetrics) recalculate() {
	if m.TotalRequests == 0 {
		m.HealthScore = 100.0
		return
	}

	score := float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100.0

	// Ledger calls above 2s lose 5 points per extra second, capped at 20
	if m.AverageLatency > 2*time.Second {
		penalty := (m.AverageLatency.Seconds() - 2.0) * 5.0
		if penalty > 20.0 {
			penalty = 20.0
		}
		score -= penalty
	}

	streak := float64(m.ConsecutiveFailures) * 10.0
	if streak > 50.0 {
		streak = 50.0
	}
	score -= streak

	if score < 0 {
		score = 0
	}
	m.HealthScore = score
}

// GetHealthScore returns the current health score
func (m *EndpointMetrics) GetHealthScore() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthScore
}

// GetSuccessRate returns the success rate
func (m *EndpointMetrics) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.TotalRequests == 0 {
		return 1.0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests)
}

// GetConsecutiveFailures returns the failure streak
func (m *EndpointMetrics) GetConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConsecutiveFailures
}

// GetLastError returns the last recorded error
func (m *EndpointMetrics) GetLastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastError
}

// Endpoint is a single ledger endpoint with its client and metrics
type Endpoint struct {
	URL string

	mu         sync.RWMutex
	client     Client
	state      EndpointState
	metrics    *EndpointMetrics
	lastUsed   time.Time
	excludedAt time.Time
}

// NewEndpoint creates a new endpoint in the healthy state
func NewEndpoint(url string) *Endpoint {
	return &Endpoint{
		URL:     url,
		state:   StateHealthy,
		metrics: newEndpointMetrics(100.0),
	}
}

// SetClient sets the client for this endpoint
func (e *Endpoint) SetClient(client Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = client
}

// GetClient returns the client, nil when the endpoint is not dialed
func (e *Endpoint) GetClient() Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client
}

// Metrics returns the metrics of the endpoint
func (e *Endpoint) Metrics() *EndpointMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

// ResetMetrics replaces the metrics with a fresh set starting at the given score
func (e *Endpoint) ResetMetrics(score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = newEndpointMetrics(score)
}

// UpdateState updates the endpoint state
func (e *Endpoint) UpdateState(state EndpointState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state == StateExcluded && e.state != StateExcluded {
		e.excludedAt = time.Now()
	}
	e.state = state
}

// GetState returns the current state
func (e *Endpoint) GetState() EndpointState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsHealthy returns true if endpoint is in a usable state
func (e *Endpoint) IsHealthy() bool {
	state := e.GetState()
	return state == StateHealthy || state == StateDegraded
}

// ExcludedSince returns when the endpoint was last excluded
func (e *Endpoint) ExcludedSince() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.excludedAt
}

func (e *Endpoint) markExcludedNow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.excludedAt = time.Now()
}

func (e *Endpoint) touch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = time.Now()
}

// LastUsed returns the last time the endpoint was selected
func (e *Endpoint) LastUsed() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUsed
}
