package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/palaidn/palaidn/validator/constant"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Set defaults for ledger config
	if cfg.NetUID == 0 {
		cfg.NetUID = 30
	}
	if len(cfg.LedgerGRPCURLs) == 0 {
		cfg.LedgerGRPCURLs = []string{"localhost:9944"}
	}
	if cfg.LedgerCallTimeoutSeconds == 0 {
		cfg.LedgerCallTimeoutSeconds = 30
	}
	if cfg.OwnUID < -1 {
		return fmt.Errorf("own uid must be -1 or a valid uid")
	}

	// Set defaults for scoring config
	if cfg.MinStake == 0 {
		cfg.MinStake = 1000.0
	}
	if cfg.MinStake < 0 {
		return fmt.Errorf("min stake must not be negative")
	}
	if cfg.MaxTargets == 0 {
		cfg.MaxTargets = 128
	}
	if cfg.MaxTargets < 0 {
		return fmt.Errorf("max targets must be positive")
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.9
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1)")
	}
	if cfg.QueryTimeoutSeconds == 0 {
		cfg.QueryTimeoutSeconds = 12
	}

	// Set defaults for cadence config
	if cfg.FullSyncEveryRounds == 0 {
		cfg.FullSyncEveryRounds = 300
	}
	if cfg.LightRefreshEveryRounds == 0 {
		cfg.LightRefreshEveryRounds = 5
	}
	if cfg.CommitBlockDistance == 0 {
		cfg.CommitBlockDistance = 300
	}
	if cfg.RoundIntervalSeconds == 0 {
		cfg.RoundIntervalSeconds = 30
	}
	if cfg.EmptyResponseBackoffSeconds == 0 {
		cfg.EmptyResponseBackoffSeconds = 30
	}
	if cfg.FullSyncEveryRounds < 0 || cfg.LightRefreshEveryRounds < 0 ||
		cfg.RoundIntervalSeconds < 0 || cfg.EmptyResponseBackoffSeconds < 0 || cfg.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("cadence values must be positive")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}

	// Reference API key falls back to the environment
	if cfg.ReferenceAPIKey == "" {
		cfg.ReferenceAPIKey = os.Getenv(constant.ReferenceAPIKeyEnv)
	}

	// Set defaults for RPC pool config
	if cfg.RPCPoolConfig.HealthCheckIntervalSeconds == 0 {
		cfg.RPCPoolConfig.HealthCheckIntervalSeconds = 30
	}
	if cfg.RPCPoolConfig.UnhealthyThreshold == 0 {
		cfg.RPCPoolConfig.UnhealthyThreshold = 3
	}
	if cfg.RPCPoolConfig.RecoveryIntervalSeconds == 0 {
		cfg.RPCPoolConfig.RecoveryIntervalSeconds = 300
	}
	if cfg.RPCPoolConfig.MinHealthyEndpoints == 0 {
		cfg.RPCPoolConfig.MinHealthyEndpoints = 1
	}
	if cfg.RPCPoolConfig.RequestTimeoutSeconds == 0 {
		cfg.RPCPoolConfig.RequestTimeoutSeconds = 10
	}
	if cfg.RPCPoolConfig.LoadBalancingStrategy == "" {
		cfg.RPCPoolConfig.LoadBalancingStrategy = "round-robin"
	}

	// Validate load balancing strategy
	if cfg.RPCPoolConfig.LoadBalancingStrategy != "round-robin" &&
		cfg.RPCPoolConfig.LoadBalancingStrategy != "weighted" {
		return fmt.Errorf("load balancing strategy must be 'round-robin' or 'weighted'")
	}

	return nil
}

// Validate fills defaults and checks the config.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <NodeDir>/config/palaidn_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The API key is a secret; it is read from the environment instead.
	out := *cfg
	out.ReferenceAPIKey = ""

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the config from <BasePath>/config/palaidn_config.json on top of
// the embedded defaults. Every key can be overridden with a PALAIDN_ env var,
// nested keys joined by an underscore (PALAIDN_RPC_POOL_CONFIG_UNHEALTHY_THRESHOLD).
func Load(basePath string) (Config, error) {
	cfg, err := LoadDefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(filepath.Clean(filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)))
	v.SetConfigType("json")
	v.SetEnvPrefix(constant.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.NodeHome == "" {
		cfg.NodeHome = basePath
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return *cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
