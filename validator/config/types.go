package config

import "time"

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level" mapstructure:"log_level"`     // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format" mapstructure:"log_format"`   // "json" or "console"
	LogSampler bool   `json:"log_sampler" mapstructure:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome  string `json:"node_home" mapstructure:"node_home"`   // Node home directory (default: ~/.palaidn)
	LoadState bool   `json:"load_state" mapstructure:"load_state"` // Restore the persisted state at startup; false clears it

	// Ledger configuration
	NetUID                   uint16        `json:"netuid" mapstructure:"netuid"`                                           // Subnet identifier (default: 30)
	LedgerGRPCURLs           []string      `json:"ledger_grpc_urls" mapstructure:"ledger_grpc_urls"`                       // Ledger gRPC endpoints
	LedgerCallTimeoutSeconds int           `json:"ledger_call_timeout_seconds" mapstructure:"ledger_call_timeout_seconds"` // Bound for every ledger call (default: 30)
	WalletHotkey             string        `json:"wallet_hotkey" mapstructure:"wallet_hotkey"`                             // Hotkey the validator signs weights with
	OwnUID                   int           `json:"own_uid" mapstructure:"own_uid"`                                         // Own uid in the membership, -1 if not registered
	RPCPoolConfig            RPCPoolConfig `json:"rpc_pool_config" mapstructure:"rpc_pool_config"`

	// Scoring configuration
	MinStake            float64 `json:"min_stake" mapstructure:"min_stake"`                         // Stake floor for querying (default: 1000.0)
	MaxTargets          int     `json:"max_targets" mapstructure:"max_targets"`                     // Maximum fan-out per round (default: 128)
	Alpha               float64 `json:"alpha" mapstructure:"alpha"`                                 // EMA smoothing constant in (0,1) (default: 0.9)
	SelectionSeed       int64   `json:"selection_seed" mapstructure:"selection_seed"`               // Seed for the selection tie-break permutation
	QueryTimeoutSeconds int     `json:"query_timeout_seconds" mapstructure:"query_timeout_seconds"` // Overall fan-out timeout (default: 12)

	// Cadence configuration
	FullSyncEveryRounds         int    `json:"full_sync_every_rounds" mapstructure:"full_sync_every_rounds"`                 // default: 300
	LightRefreshEveryRounds     int    `json:"light_refresh_every_rounds" mapstructure:"light_refresh_every_rounds"`         // default: 5
	CommitBlockDistance         uint64 `json:"commit_block_distance" mapstructure:"commit_block_distance"`                   // default: 300
	RoundIntervalSeconds        int    `json:"round_interval_seconds" mapstructure:"round_interval_seconds"`                 // default: 30
	EmptyResponseBackoffSeconds int    `json:"empty_response_backoff_seconds" mapstructure:"empty_response_backoff_seconds"` // default: 30

	// Reference data configuration
	ReferenceAPIURL          string `json:"reference_api_url" mapstructure:"reference_api_url"`
	ReferenceAPIKey          string `json:"reference_api_key,omitempty" mapstructure:"reference_api_key"`
	ReferenceCacheTTLSeconds int    `json:"reference_cache_ttl_seconds" mapstructure:"reference_cache_ttl_seconds"` // default: 0 (fetch every round)

	// Query Server Config
	QueryServerPort int `json:"query_server_port" mapstructure:"query_server_port"` // Port for HTTP query server (default: 8080)
}

// RPCPoolConfig configures the pool of ledger endpoints.
type RPCPoolConfig struct {
	HealthCheckIntervalSeconds int    `json:"health_check_interval_seconds" mapstructure:"health_check_interval_seconds"`
	UnhealthyThreshold         int    `json:"unhealthy_threshold" mapstructure:"unhealthy_threshold"`
	RecoveryIntervalSeconds    int    `json:"recovery_interval_seconds" mapstructure:"recovery_interval_seconds"`
	MinHealthyEndpoints        int    `json:"min_healthy_endpoints" mapstructure:"min_healthy_endpoints"`
	RequestTimeoutSeconds      int    `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	LoadBalancingStrategy      string `json:"load_balancing_strategy" mapstructure:"load_balancing_strategy"`             // "round-robin" or "weighted"
}

func (c RPCPoolConfig) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}

func (c RPCPoolConfig) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalSeconds) * time.Second
}

func (c RPCPoolConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

func (c *Config) LedgerCallTimeout() time.Duration {
	return time.Duration(c.LedgerCallTimeoutSeconds) * time.Second
}

func (c *Config) RoundInterval() time.Duration {
	return time.Duration(c.RoundIntervalSeconds) * time.Second
}

func (c *Config) EmptyResponseBackoff() time.Duration {
	return time.Duration(c.EmptyResponseBackoffSeconds) * time.Second
}

func (c *Config) ReferenceCacheTTL() time.Duration {
	return time.Duration(c.ReferenceCacheTTLSeconds) * time.Second
}
