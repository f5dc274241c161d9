package constant

import "os"

// <NodeDir>/                    (e.g., /home/validator/.palaidn)
// └── config/
//	└── palaidn_config.json
// └── databases/
//	└── validator_state.db

const (
	NodeDir = ".palaidn"

	ConfigSubdir   = "config"
	ConfigFileName = "palaidn_config.json"

	DatabasesSubdir = "databases"
	StateDBFileName = "validator_state.db"

	// EnvPrefix is the prefix for environment overrides of config keys (PALAIDN_NETUID, ...).
	EnvPrefix = "PALAIDN"

	// ReferenceAPIKeyEnv holds the API key for the reference wallet data source.
	ReferenceAPIKeyEnv = "PAYPANGEA_API_KEY"

	// SubnetVersion is sent with every query so peers can reject incompatible validators.
	SubnetVersion = 1000
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir
