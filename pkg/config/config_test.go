package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	depth := uint64(12)

	cfg := &Config{
		Network: "mainnet",
		Listener: ListenerConfig{
			ConfirmationDepth: &depth,
		},
		Networks: map[string]NetworkConfig{
			"mainnet": {
				RPCURL:          "http://localhost:8545",
				GovernanceToken: "0x9c354503C38481a7A7a51629142963F98eCC12D0",
				Contracts: []ContractConfig{
					{
						Name:    "staking",
						Address: "0x0C4576Ca1c365868E162554AF8e385dc3e7C66D9",
						ABI:     "[]",
						Events:  []EventConfig{{Name: "Stake", Handler: HandlerStake}},
					},
				},
			},
		},
		DB: DatabaseConfig{Path: "/tmp/listener.db"},
	}
	cfg.ApplyDefaults()

	return cfg
}

func TestValidConfigPasses(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing network",
			mutate:  func(c *Config) { c.Network = "" },
			wantErr: "network is required",
		},
		{
			name:    "unknown network",
			mutate:  func(c *Config) { c.Network = "testnet" },
			wantErr: "no contract bundle",
		},
		{
			name: "missing rpc url",
			mutate: func(c *Config) {
				n := c.Networks["mainnet"]
				n.RPCURL = ""
				c.Networks["mainnet"] = n
			},
			wantErr: "rpc_url",
		},
		{
			name: "missing governance token",
			mutate: func(c *Config) {
				n := c.Networks["mainnet"]
				n.GovernanceToken = ""
				c.Networks["mainnet"] = n
			},
			wantErr: "governance_token",
		},
		{
			name: "no contracts",
			mutate: func(c *Config) {
				n := c.Networks["mainnet"]
				n.Contracts = nil
				c.Networks["mainnet"] = n
			},
			wantErr: "at least one contract",
		},
		{
			name: "missing abi",
			mutate: func(c *Config) {
				n := c.Networks["mainnet"]
				n.Contracts[0].ABI = ""
				n.Contracts[0].ABIPath = ""
				c.Networks["mainnet"] = n
			},
			wantErr: "abi_path or abi",
		},
		{
			name: "invalid handler kind",
			mutate: func(c *Config) {
				n := c.Networks["mainnet"]
				n.Contracts[0].Events[0].Handler = "catch_all"
				c.Networks["mainnet"] = n
			},
			wantErr: "handler must be one of",
		},
		{
			name:    "missing confirmation depth",
			mutate:  func(c *Config) { c.Listener.ConfirmationDepth = nil },
			wantErr: "confirmation_depth",
		},
		{
			name: "head skip in production",
			mutate: func(c *Config) {
				c.Listener.Production = true
				c.Listener.HeadSkipThreshold = 200
			},
			wantErr: "head_skip_threshold",
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DB.Path = "" },
			wantErr: "db.path",
		},
		{
			name:    "bad journal mode",
			mutate:  func(c *Config) { c.DB.JournalMode = "FANCY" },
			wantErr: "journal_mode",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.DefaultLevel = "verbose" },
			wantErr: "default_level",
		},
		{
			name: "unknown log component",
			mutate: func(c *Config) {
				c.Logging.ComponentLevels = map[string]string{"downloader": "debug"}
			},
			wantErr: "unknown component",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestZeroConfirmationDepthIsExplicit(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	zero := uint64(0)
	cfg.Listener.ConfirmationDepth = &zero

	require.NoError(t, cfg.Validate())
}

func TestComponentLevelFallback(t *testing.T) {
	t.Parallel()

	l := LoggingConfig{
		DefaultLevel:    "INFO",
		ComponentLevels: map[string]string{"poller": "debug"},
	}

	require.Equal(t, "debug", l.GetComponentLevel("poller"))
	require.Equal(t, "info", l.GetComponentLevel("reconcile"))
}
