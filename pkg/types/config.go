package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend     string       `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir     string       `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	PostgresDSN string       `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
	SQLite      SQLiteConfig `json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
}

// Supported backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// JSONL sync strategies for the SQLite backend.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
)

// Defaults for batch syncing.
const (
	DefaultBatchSize     = 50
	DefaultBatchInterval = 5 * time.Second
)

// SQLiteConfig tunes how the SQLite backend writes its JSONL files.
type SQLiteConfig struct {
	SyncStrategy  string        `json:"sync_strategy,omitempty" yaml:"sync_strategy,omitempty" mapstructure:"sync_strategy"`
	BatchSize     int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty" mapstructure:"batch_size"`
	BatchInterval time.Duration `json:"batch_interval,omitempty" yaml:"batch_interval,omitempty" mapstructure:"batch_interval"`
}

// GetSyncStrategy returns the configured strategy, defaulting to immediate.
func (c SQLiteConfig) GetSyncStrategy() string {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}

// GetBatchSize returns the configured batch size or DefaultBatchSize.
func (c SQLiteConfig) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// GetBatchInterval returns the configured interval or DefaultBatchInterval.
func (c SQLiteConfig) GetBatchInterval() time.Duration {
	if c.BatchInterval <= 0 {
		return DefaultBatchInterval
	}
	return c.BatchInterval
}

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrDSNEmpty             = errors.New("postgres backend requires a DSN")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendMemory:   true,
	BackendSQLite:   true,
	BackendPostgres: true,
}

var knownSyncStrategies = map[string]bool{
	SyncImmediate: true,
	SyncOnClose:   true,
	SyncBatch:     true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.PostgresDSN == "" {
		return ErrDSNEmpty
	}
	if c.SQLite.SyncStrategy != "" && !knownSyncStrategies[c.SQLite.SyncStrategy] {
		return ErrSyncStrategyUnknown
	}
	if c.SQLite.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if c.SQLite.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	return nil
}
