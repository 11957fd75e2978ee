// Package sqlite implements the SQLite storage backend for passports.
//
// SQLite is the query engine; one JSONL file per table in DataDir is the
// source of truth. Attach rebuilds the database from the JSONL files and every
// write rewrites the affected file atomically, either immediately or deferred
// according to the configured sync strategy.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// Compile-time contract assertion.
var _ types.Store = (*Backend)(nil)

// dbFile is the SQLite database file created in DataDir.
const dbFile = "passport.db"

// Backend implements types.Store using SQLite as the query engine and JSONL
// files as the source of truth.
type Backend struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex // serializes writes so JSONL dumps see committed state
	attached bool
	config   types.Config
	db       *sql.DB

	syncStrategy  string
	batchSize     int
	batchInterval time.Duration
	pendingWrites []pendingWrite
	queued        int // writes since the last flush
	batchTimer    *time.Timer
	batchMu       sync.Mutex // protects pendingWrites and batchTimer
}

// pendingWrite is a deferred JSONL rewrite of one table.
type pendingWrite struct {
	table   string
	persist func() error
}

// NewBackend creates a detached SQLite backend. Call Attach to open it.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach creates DataDir if needed, builds a fresh SQLite database from the
// JSONL files in it, and starts the batch timer for the batch strategy.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if config.Backend == "" {
		config.Backend = types.BackendSQLite
	}
	if err := config.Validate(); err != nil {
		return err
	}

	if config.DataDir == "" {
		config.DataDir = "."
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// The database is a cache of the JSONL files; start it fresh every time.
	dbPath := filepath.Join(config.DataDir, dbFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := initJSONLFiles(config.DataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, config.DataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config
	b.syncStrategy = config.SQLite.GetSyncStrategy()
	b.batchSize = config.SQLite.GetBatchSize()
	b.batchInterval = config.SQLite.GetBatchInterval()
	b.pendingWrites = nil
	b.attached = true

	if b.syncStrategy == types.SyncBatch {
		b.startBatchTimer()
	}
	return nil
}

// Detach flushes pending JSONL writes and closes the database. After Detach
// every repository call returns ErrStoreDetached. Idempotent.
func (b *Backend) Detach() error {
	b.stopBatchTimer()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if err := b.flushPendingWrites(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	b.db = nil
	b.attached = false
	return nil
}

// Traces returns the trace record repository.
func (b *Backend) Traces() types.TraceRepository { return &traceRepo{b: b} }

// Suppliers returns the supplier repository.
func (b *Backend) Suppliers() types.SupplierRepository { return &supplierRepo{b: b} }

// History returns the status history repository.
func (b *Backend) History() types.HistoryRepository { return &historyRepo{b: b} }

// QRCodes returns the QR code repository.
func (b *Backend) QRCodes() types.QRCodeRepository { return &qrRepo{b: b} }

// read runs fn with the database while holding the read lock.
func (b *Backend) read(fn func(db *sql.DB) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	return fn(b.db)
}

// write runs fn inside a transaction and then persists the table's JSONL
// file according to the sync strategy.
func (b *Backend) write(table string, fn func(tx *sql.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}

	m := mappingFor(table)
	db, dir := b.db, b.config.DataDir
	persist := func() error { return persistTableJSONL(db, dir, m) }
	if b.shouldPersistImmediately() {
		if err := persist(); err != nil {
			return fmt.Errorf("persist %s: %w", m.file, err)
		}
		return nil
	}
	return b.queueWrite(table, persist)
}

// shouldPersistImmediately reports whether JSONL writes happen on every
// write rather than being queued.
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// queueWrite records a deferred rewrite of table. A queued rewrite of the
// same table is replaced, since each rewrite dumps the whole table. For the
// batch strategy the queue is flushed once it holds batchSize writes.
func (b *Backend) queueWrite(table string, persist func() error) error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	replaced := false
	for i := range b.pendingWrites {
		if b.pendingWrites[i].table == table {
			b.pendingWrites[i].persist = persist
			replaced = true
		}
	}
	if !replaced {
		b.pendingWrites = append(b.pendingWrites, pendingWrite{table: table, persist: persist})
	}
	b.queued++

	if b.syncStrategy == types.SyncBatch && b.queued >= b.batchSize {
		return b.flushPendingWritesLocked()
	}
	return nil
}

// flushPendingWrites runs every queued rewrite.
func (b *Backend) flushPendingWrites() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return b.flushPendingWritesLocked()
}

// flushPendingWritesLocked runs every queued rewrite. The caller holds
// batchMu. On error the failed and remaining writes stay queued.
func (b *Backend) flushPendingWritesLocked() error {
	for len(b.pendingWrites) > 0 {
		pw := b.pendingWrites[0]
		if err := pw.persist(); err != nil {
			return fmt.Errorf("flush %s: %w", pw.table, err)
		}
		b.pendingWrites = b.pendingWrites[1:]
	}
	b.pendingWrites = nil
	b.queued = 0
	return nil
}

// startBatchTimer starts the periodic flush for the batch strategy.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(b.batchInterval, func() {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if !b.attached {
			return
		}
		b.writeMu.Lock()
		_ = b.flushPendingWrites()
		b.writeMu.Unlock()

		b.batchMu.Lock()
		if b.batchTimer == timer {
			timer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
	b.batchTimer = timer
}

// stopBatchTimer stops the batch timer if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}

// pending returns the number of queued JSONL rewrites.
func (b *Backend) pending() int {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return len(b.pendingWrites)
}
