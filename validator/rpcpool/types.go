package rpcpool

import "time"

// EndpointInfo is a point-in-time view of one endpoint
type EndpointInfo struct {
	URL                 string    `json:"url"`
	State               string    `json:"state"`
	HealthScore         float64   `json:"health_score"`
	LastUsed            time.Time `json:"last_used"`
	RequestCount        uint64    `json:"request_count"`
	FailureCount        uint64    `json:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AverageLatencyMs    int64     `json:"average_latency_ms"`
	LastError           string    `json:"last_error,omitempty"`
}

// PoolStats summarizes a pool for the query server
type PoolStats struct {
	Name           string         `json:"name"`
	Strategy       string         `json:"strategy"`
	TotalEndpoints int            `json:"total_endpoints"`
	HealthyCount   int            `json:"healthy_count"`
	DegradedCount  int            `json:"degraded_count"`
	UnhealthyCount int            `json:"unhealthy_count"`
	ExcludedCount  int            `json:"excluded_count"`
	Endpoints      []EndpointInfo `json:"endpoints"`
}
