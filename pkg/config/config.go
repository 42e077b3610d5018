package config

import (
	"fmt"
	"time"

	"github.com/origin-gov/governance-listener/internal/common"
	"github.com/origin-gov/governance-listener/internal/logger"
)

// Handler kinds form the closed set of event dispatch targets. Every watched
// event must name one of these explicitly; there is no catch-all branch.
const (
	HandlerProposalCreated = "proposal_created"
	HandlerStake           = "stake"
	HandlerUnstake         = "unstake"
	HandlerNewVoter        = "new_voter"
)

var validHandlers = map[string]struct{}{
	HandlerProposalCreated: {},
	HandlerStake:           {},
	HandlerUnstake:         {},
	HandlerNewVoter:        {},
}

// Config represents the complete configuration for the governance listener.
type Config struct {
	// Network is the identifier of the network to listen on. It selects the
	// contract bundle from Networks and may be overridden by NETWORK_ID.
	Network string `yaml:"network" json:"network" toml:"network"`

	// Listener contains the poll loop configuration
	Listener ListenerConfig `yaml:"listener" json:"listener" toml:"listener"`

	// Networks maps a network identifier to its contract bundle
	Networks map[string]NetworkConfig `yaml:"networks" json:"networks" toml:"networks"`

	// DB contains database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Logging contains logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging" toml:"logging"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the read-only query API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`
}

// ListenerConfig represents the configuration for the poll loop.
type ListenerConfig struct {
	// PollInterval is the period between poll ticks
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// ConfirmationDepth is the number of blocks behind head considered safe
	// from reorganization. It is required: zero means "accept as soon as
	// observed" and must be an explicit choice, so the field is a pointer and
	// validation rejects a missing value.
	ConfirmationDepth *uint64 `yaml:"confirmation_depth" json:"confirmation_depth" toml:"confirmation_depth"`

	// ChunkSize is the maximum block range per eth_getLogs call
	ChunkSize uint64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`

	// Concurrency is the maximum number of chunk fetches in flight
	Concurrency int `yaml:"concurrency" json:"concurrency" toml:"concurrency"`

	// StartBlock is the minimum block to start listening from on a fresh store
	StartBlock uint64 `yaml:"start_block" json:"start_block" toml:"start_block"`

	// Retry contains RPC retry configuration
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// RequestTimeout bounds every individual RPC call
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`

	// IgnoreUnknownEvents drops logs whose topic0 is not in the registry.
	// When false an unknown signature on a watched contract is fatal.
	IgnoreUnknownEvents bool `yaml:"ignore_unknown_events" json:"ignore_unknown_events" toml:"ignore_unknown_events"`

	// Production disables the dev head-skip behavior
	Production bool `yaml:"production" json:"production" toml:"production"`

	// HeadSkipThreshold enables skipping to chain head when the persisted
	// checkpoint drifts more than this many blocks from head. Only honored
	// when Production is false; local test chains are reset often enough that
	// replaying stale history is meaningless there.
	HeadSkipThreshold uint64 `yaml:"head_skip_threshold" json:"head_skip_threshold" toml:"head_skip_threshold"`
}

// ApplyDefaults sets default values for optional listener configuration fields.
func (l *ListenerConfig) ApplyDefaults() {
	if l.PollInterval.Duration == 0 {
		l.PollInterval = common.NewDuration(10 * time.Second)
	}
	if l.ChunkSize == 0 {
		l.ChunkSize = 1000
	}
	if l.Concurrency == 0 {
		l.Concurrency = 10
	}
	if l.RequestTimeout.Duration == 0 {
		l.RequestTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if l.Retry != nil {
		l.Retry.ApplyDefaults()
	}
	// HeadSkipThreshold defaults to 0 (disabled); Production defaults to false
}

// RetryConfig represents RPC retry configuration.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// Backoff is the delay before each retry
	Backoff common.Duration `yaml:"backoff" json:"backoff" toml:"backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier applied between attempts.
	// 1.0 keeps the backoff fixed.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.Backoff.Duration == 0 {
		r.Backoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 1.0
	}
}

// NetworkConfig is the contract bundle for one network.
type NetworkConfig struct {
	// RPCURL is the JSON-RPC endpoint for this network. May be overridden by RPC_URL.
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// GovernanceToken is the address used for balanceOf reads (voter vote power)
	GovernanceToken string `yaml:"governance_token" json:"governance_token" toml:"governance_token"`

	// Contracts is the list of contracts to watch on this network
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`
}

// ContractConfig represents a watched contract and its handled events.
type ContractConfig struct {
	// Name is the logical contract name used as the registry key
	Name string `yaml:"name" json:"name" toml:"name"`

	// Address is the contract address to monitor
	Address string `yaml:"address" json:"address" toml:"address"`

	// ABIPath points to a JSON ABI file for the contract
	ABIPath string `yaml:"abi_path" json:"abi_path" toml:"abi_path"`

	// ABI is an inline JSON ABI, used instead of ABIPath when set
	ABI string `yaml:"abi,omitempty" json:"abi,omitempty" toml:"abi,omitempty"`

	// Events lists the handled events with their explicit handler kind
	Events []EventConfig `yaml:"events" json:"events" toml:"events"`
}

// EventConfig binds an ABI event name to a handler kind.
type EventConfig struct {
	Name    string `yaml:"name" json:"name" toml:"name"`
	Handler string `yaml:"handler" json:"handler" toml:"handler"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// CORSConfig configures cross-origin access to the query API.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// APIConfig configures the read-only query API server.
type APIConfig struct {
	// Enabled controls whether the API server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	CORS CORSConfig `yaml:"cors" json:"cors" toml:"cors"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
}

// ActiveNetwork returns the contract bundle for the selected network.
func (c *Config) ActiveNetwork() (NetworkConfig, error) {
	network, ok := c.Networks[c.Network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("no contract bundle configured for network '%s'", c.Network)
	}
	return network, nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Listener.ApplyDefaults()
	c.DB.ApplyDefaults()
	c.Logging.ApplyDefaults()

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
	if c.API != nil {
		c.API.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid. Configuration errors are
// fatal at startup, before the poll loop begins.
func (c *Config) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("network is required (set 'network' or the NETWORK_ID environment variable)")
	}

	network, ok := c.Networks[c.Network]
	if !ok {
		return fmt.Errorf("no contract bundle configured for network '%s'", c.Network)
	}

	if network.RPCURL == "" {
		return fmt.Errorf("networks[%s].rpc_url is required (or set the RPC_URL environment variable)", c.Network)
	}

	if network.GovernanceToken == "" {
		return fmt.Errorf("networks[%s].governance_token is required", c.Network)
	}

	if len(network.Contracts) == 0 {
		return fmt.Errorf("networks[%s]: at least one contract must be configured", c.Network)
	}

	contractNames := make(map[string]bool)
	for i, contract := range network.Contracts {
		if contract.Name == "" {
			return fmt.Errorf("networks[%s].contracts[%d]: name is required", c.Network, i)
		}
		if contractNames[contract.Name] {
			return fmt.Errorf("networks[%s].contracts[%d]: duplicate contract name '%s'", c.Network, i, contract.Name)
		}
		contractNames[contract.Name] = true

		if contract.Address == "" {
			return fmt.Errorf("networks[%s].contracts[%d] (%s): address is required", c.Network, i, contract.Name)
		}
		if contract.ABIPath == "" && contract.ABI == "" {
			return fmt.Errorf("networks[%s].contracts[%d] (%s): abi_path or abi is required", c.Network, i, contract.Name)
		}
		if len(contract.Events) == 0 {
			return fmt.Errorf("networks[%s].contracts[%d] (%s): at least one event must be configured",
				c.Network, i, contract.Name)
		}

		for j, event := range contract.Events {
			if event.Name == "" {
				return fmt.Errorf("networks[%s].contracts[%d] (%s), events[%d]: name is required",
					c.Network, i, contract.Name, j)
			}
			if _, valid := validHandlers[event.Handler]; !valid {
				return fmt.Errorf(
					"networks[%s].contracts[%d] (%s), events[%d]: handler must be one of: "+
						"proposal_created, stake, unstake, new_voter",
					c.Network, i, contract.Name, j)
			}
		}
	}

	if c.Listener.ConfirmationDepth == nil {
		return fmt.Errorf("listener.confirmation_depth is required (0 is accepted but must be explicit)")
	}

	if c.Listener.Production && c.Listener.HeadSkipThreshold > 0 {
		return fmt.Errorf("listener.head_skip_threshold must not be set in production mode")
	}

	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}

	if c.DB.JournalMode != "" && c.DB.JournalMode != "WAL" &&
		c.DB.JournalMode != "DELETE" && c.DB.JournalMode != "TRUNCATE" &&
		c.DB.JournalMode != "PERSIST" && c.DB.JournalMode != "MEMORY" {
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if c.DB.Synchronous != "" && c.DB.Synchronous != "FULL" &&
		c.DB.Synchronous != "NORMAL" && c.DB.Synchronous != "OFF" {
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
