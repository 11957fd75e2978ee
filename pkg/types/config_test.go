package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "mongo", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:   "valid sqlite config",
			config: Config{Backend: BackendSQLite, DataDir: "/tmp/data"},
		},
		{
			name:   "sqlite with empty DataDir is valid at config level",
			config: Config{Backend: BackendSQLite},
		},
		{
			name:   "memory backend needs nothing else",
			config: Config{Backend: BackendMemory},
		},
		{
			name:    "postgres without DSN",
			config:  Config{Backend: BackendPostgres},
			wantErr: ErrDSNEmpty,
		},
		{
			name:   "postgres with DSN",
			config: Config{Backend: BackendPostgres, PostgresDSN: "postgres://localhost/passport"},
		},
		{
			name:    "unknown sync strategy",
			config:  Config{Backend: BackendSQLite, SQLite: SQLiteConfig{SyncStrategy: "sometimes"}},
			wantErr: ErrSyncStrategyUnknown,
		},
		{
			name:    "negative batch size",
			config:  Config{Backend: BackendSQLite, SQLite: SQLiteConfig{SyncStrategy: SyncBatch, BatchSize: -1}},
			wantErr: ErrBatchSizeInvalid,
		},
		{
			name:    "negative batch interval",
			config:  Config{Backend: BackendSQLite, SQLite: SQLiteConfig{SyncStrategy: SyncBatch, BatchInterval: -time.Second}},
			wantErr: ErrBatchIntervalInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSQLiteConfigDefaults(t *testing.T) {
	var c SQLiteConfig
	if got := c.GetSyncStrategy(); got != SyncImmediate {
		t.Errorf("GetSyncStrategy() = %q, want %q", got, SyncImmediate)
	}
	if got := c.GetBatchSize(); got != DefaultBatchSize {
		t.Errorf("GetBatchSize() = %d, want %d", got, DefaultBatchSize)
	}
	if got := c.GetBatchInterval(); got != DefaultBatchInterval {
		t.Errorf("GetBatchInterval() = %v, want %v", got, DefaultBatchInterval)
	}
}
