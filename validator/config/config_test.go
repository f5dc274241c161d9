package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palaidn/palaidn/validator/constant"
)

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		expectError bool
		errorMsg    string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "Valid config with all fields",
			config: &Config{
				LogLevel:            2,
				LogFormat:           "json",
				NetUID:              14,
				LedgerGRPCURLs:      []string{"ledger:9944"},
				MinStake:            500,
				MaxTargets:          32,
				Alpha:               0.8,
				QueryTimeoutSeconds: 5,
				QueryServerPort:     9000,
			},
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, uint16(14), cfg.NetUID)
				assert.Equal(t, 500.0, cfg.MinStake)
				assert.Equal(t, 32, cfg.MaxTargets)
				assert.Equal(t, 0.8, cfg.Alpha)
				assert.Equal(t, 5*time.Second, cfg.QueryTimeout())
			},
		},
		{
			name: "Invalid log level (negative)",
			config: &Config{
				LogLevel:  -1,
				LogFormat: "json",
			},
			expectError: true,
			errorMsg:    "log level must be between 0 and 5",
		},
		{
			name: "Invalid log level (too high)",
			config: &Config{
				LogLevel:  6,
				LogFormat: "json",
			},
			expectError: true,
			errorMsg:    "log level must be between 0 and 5",
		},
		{
			name: "Invalid log format",
			config: &Config{
				LogLevel:  2,
				LogFormat: "xml",
			},
			expectError: true,
			errorMsg:    "log format must be 'json' or 'console'",
		},
		{
			name: "Alpha out of range",
			config: &Config{
				LogFormat: "json",
				Alpha:     1.5,
			},
			expectError: true,
			errorMsg:    "alpha must be in (0, 1)",
		},
		{
			name: "Negative max targets",
			config: &Config{
				LogFormat:  "json",
				MaxTargets: -3,
			},
			expectError: true,
			errorMsg:    "max targets must be positive",
		},
		{
			name: "Invalid load balancing strategy",
			config: &Config{
				LogFormat: "json",
				RPCPoolConfig: RPCPoolConfig{
					LoadBalancingStrategy: "random",
				},
			},
			expectError: true,
			errorMsg:    "load balancing strategy must be 'round-robin' or 'weighted'",
		},
		{
			name: "Config with defaults applied",
			config: &Config{
				LogLevel:  2,
				LogFormat: "json",
			},
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, uint16(30), cfg.NetUID)
				assert.Equal(t, []string{"localhost:9944"}, cfg.LedgerGRPCURLs)
				assert.Equal(t, 1000.0, cfg.MinStake)
				assert.Equal(t, 128, cfg.MaxTargets)
				assert.Equal(t, 0.9, cfg.Alpha)
				assert.Equal(t, 300, cfg.FullSyncEveryRounds)
				assert.Equal(t, 5, cfg.LightRefreshEveryRounds)
				assert.Equal(t, uint64(300), cfg.CommitBlockDistance)
				assert.Equal(t, 30*time.Second, cfg.RoundInterval())
				assert.Equal(t, 30*time.Second, cfg.EmptyResponseBackoff())
				assert.Equal(t, 30*time.Second, cfg.LedgerCallTimeout())
				assert.Equal(t, 8080, cfg.QueryServerPort)
				assert.Equal(t, "round-robin", cfg.RPCPoolConfig.LoadBalancingStrategy)
				assert.Equal(t, 10*time.Second, cfg.RPCPoolConfig.RequestTimeout())
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateConfig(tc.config)
			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
				return
			}
			require.NoError(t, err)
			if tc.validate != nil {
				tc.validate(t, tc.config)
			}
		})
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, uint16(30), cfg.NetUID)
	assert.Equal(t, -1, cfg.OwnUID)
	assert.Equal(t, 0.9, cfg.Alpha)
	assert.Equal(t, 128, cfg.MaxTargets)
	assert.Equal(t, 1000.0, cfg.MinStake)
	assert.True(t, cfg.LoadState)
	require.NoError(t, validateConfig(cfg))
}

func TestSaveAndLoad(t *testing.T) {
	t.Run("round trips through the config file", func(t *testing.T) {
		home := t.TempDir()

		cfg, err := LoadDefaultConfig()
		require.NoError(t, err)
		cfg.NetUID = 14
		cfg.MaxTargets = 16
		cfg.OwnUID = 3
		cfg.ReferenceAPIKey = "secret"

		require.NoError(t, Save(cfg, home))

		raw, err := os.ReadFile(filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName))
		require.NoError(t, err)
		var onDisk map[string]any
		require.NoError(t, json.Unmarshal(raw, &onDisk))
		assert.NotContains(t, onDisk, "reference_api_key")

		loaded, err := Load(home)
		require.NoError(t, err)
		assert.Equal(t, uint16(14), loaded.NetUID)
		assert.Equal(t, 16, loaded.MaxTargets)
		assert.Equal(t, 3, loaded.OwnUID)
		assert.Equal(t, home, loaded.NodeHome)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		home := t.TempDir()

		cfg, err := LoadDefaultConfig()
		require.NoError(t, err)
		require.NoError(t, Save(cfg, home))

		t.Setenv("PALAIDN_MAX_TARGETS", "7")
		t.Setenv("PALAIDN_RPC_POOL_CONFIG_UNHEALTHY_THRESHOLD", "9")
		t.Setenv(constant.ReferenceAPIKeyEnv, "from-env")

		loaded, err := Load(home)
		require.NoError(t, err)
		assert.Equal(t, 7, loaded.MaxTargets)
		assert.Equal(t, 9, loaded.RPCPoolConfig.UnhealthyThreshold)
		assert.Equal(t, "from-env", loaded.ReferenceAPIKey)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("invalid config is rejected on save", func(t *testing.T) {
		err := Save(&Config{LogFormat: "yaml"}, t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}
