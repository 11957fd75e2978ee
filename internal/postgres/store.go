// Package postgres provides a Postgres-backed Store. It keeps the working set
// in a memory.Store and writes a JSONB snapshot per bucket after every
// successful write, loading the snapshot back on Attach.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/mesh-intelligence/passport/internal/memory"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// Compile-time contract assertion.
var _ types.Store = (*Store)(nil)

const driverName = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the function used to open connections and returns a
// restore func. Tests use it to inject a stub database.
func OverrideSQLOpen(fn func(driver, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Buckets persisted in the state table.
const (
	bucketTraces    = "traces"
	bucketSuppliers = "suppliers"
	bucketHistory   = "history"
	bucketQRCodes   = "qr_codes"
)

var buckets = []string{bucketTraces, bucketSuppliers, bucketHistory, bucketQRCodes}

// Store persists state to Postgres while serving reads from memory.
type Store struct {
	mem *memory.Store
	db  *sql.DB
	mu  sync.Mutex // serializes snapshot writes
}

// NewStore returns a detached Postgres store.
func NewStore() *Store {
	s := &Store{}
	s.mem = memory.NewStore(memory.WithCommitHook(s.persist))
	return s
}

// Attach opens config.PostgresDSN, creates the state table if needed, and
// loads the last snapshot.
func (s *Store) Attach(config types.Config) error {
	if config.Backend == "" {
		config.Backend = types.BackendPostgres
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return types.ErrAlreadyAttached
	}

	openMu.Lock()
	db, err := sqlOpen(driverName, config.PostgresDSN)
	openMu.Unlock()
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		db.Close()
		return err
	}
	snap, err := loadSnapshot(ctx, db)
	if err != nil {
		db.Close()
		return err
	}
	if err := s.mem.Attach(types.Config{Backend: types.BackendMemory}); err != nil {
		db.Close()
		return err
	}
	s.mem.ImportState(snap)
	s.db = db
	return nil
}

// Detach closes the connection. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_ = s.mem.Detach()
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}

// Traces returns the trace record repository.
func (s *Store) Traces() types.TraceRepository { return s.mem.Traces() }

// Suppliers returns the supplier repository.
func (s *Store) Suppliers() types.SupplierRepository { return s.mem.Suppliers() }

// History returns the status history repository.
func (s *Store) History() types.HistoryRepository { return s.mem.History() }

// QRCodes returns the QR code repository.
func (s *Store) QRCodes() types.QRCodeRepository { return s.mem.QRCodes() }

// DB exposes the underlying connection for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS passport_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM passport_state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snap memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if err := decodeBucket(&snap, bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snap, nil
}

// decodeBucket unmarshals one bucket payload into snap. Unknown buckets and
// empty payloads are ignored.
func decodeBucket(snap *memory.Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case bucketTraces:
		target = &snap.Traces
	case bucketSuppliers:
		target = &snap.Suppliers
	case bucketHistory:
		target = &snap.History
	case bucketQRCodes:
		target = &snap.QRCodes
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func encodeBucket(snap memory.Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case bucketTraces:
		return json.Marshal(snap.Traces)
	case bucketSuppliers:
		return json.Marshal(snap.Suppliers)
	case bucketHistory:
		return json.Marshal(snap.History)
	case bucketQRCodes:
		return json.Marshal(snap.QRCodes)
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

// execer is the subset of *sql.Tx used to write buckets.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeBuckets(ctx context.Context, ex execer, snap memory.Snapshot) error {
	for _, bucket := range buckets {
		data, err := encodeBucket(snap, bucket)
		if err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx,
			`INSERT INTO passport_state(bucket, payload) VALUES($1, $2)
			 ON CONFLICT(bucket) DO UPDATE SET payload = EXCLUDED.payload`,
			bucket, data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return nil
}

// persist writes the current memory state in one transaction.
func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return types.ErrStoreDetached
	}
	snap := s.mem.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := writeBuckets(ctx, tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	committed = true
	return nil
}
