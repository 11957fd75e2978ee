// Package memory provides an in-memory Store used for tests, ephemeral
// servers and as the working set of the Postgres backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// Compile-time contract assertion.
var _ types.Store = (*Store)(nil)

// Snapshot is the full state of a Store. It is what the Postgres backend
// persists and loads.
type Snapshot struct {
	Traces    []types.TraceRecord  `json:"traces"`
	Suppliers []types.Supplier     `json:"suppliers"`
	History   []types.StatusChange `json:"history"`
	QRCodes   []types.QRCodeLog    `json:"qr_codes"`
}

// CommitHook runs after every write, outside the store lock. A failing hook
// rolls the write back.
type CommitHook func(ctx context.Context) error

// Store keeps every entity in maps guarded by one RWMutex. Concurrent writes
// to the same record are last-write-wins.
type Store struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex // held across a write and its commit hook
	attached bool

	traces    map[string]types.TraceRecord
	suppliers map[string]types.Supplier
	history   []types.StatusChange
	qrcodes   []types.QRCodeLog

	now    func() time.Time
	onSave CommitHook
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCommitHook registers a hook that runs after each write.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.onSave = h }
}

// NewStore returns a detached store.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach starts the store with empty state. The config is validated but only
// its backend name is relevant.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return types.ErrAlreadyAttached
	}
	if config.Backend == "" {
		config.Backend = types.BackendMemory
	}
	if err := config.Validate(); err != nil {
		return err
	}
	s.reset()
	s.attached = true
	return nil
}

// Detach drops all state. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.reset()
	return nil
}

func (s *Store) reset() {
	s.traces = make(map[string]types.TraceRecord)
	s.suppliers = make(map[string]types.Supplier)
	s.history = nil
	s.qrcodes = nil
}

// ExportState returns a copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Traces:    make([]types.TraceRecord, 0, len(s.traces)),
		Suppliers: make([]types.Supplier, 0, len(s.suppliers)),
		History:   append([]types.StatusChange{}, s.history...),
		QRCodes:   append([]types.QRCodeLog{}, s.qrcodes...),
	}
	for _, r := range s.traces {
		snap.Traces = append(snap.Traces, r)
	}
	sortTraces(snap.Traces)
	for _, sup := range s.suppliers {
		snap.Suppliers = append(snap.Suppliers, sup)
	}
	sortSuppliers(snap.Suppliers)
	return snap
}

// ImportState replaces the store contents with snap.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, r := range snap.Traces {
		s.traces[r.TraceID] = r
	}
	for _, sup := range snap.Suppliers {
		s.suppliers[sup.SupplierID] = sup
	}
	s.history = append(s.history, snap.History...)
	s.qrcodes = append(s.qrcodes, snap.QRCodes...)
}

// Traces returns the trace record repository.
func (s *Store) Traces() types.TraceRepository { return traceRepo{s} }

// Suppliers returns the supplier repository.
func (s *Store) Suppliers() types.SupplierRepository { return supplierRepo{s} }

// History returns the status history repository.
func (s *Store) History() types.HistoryRepository { return historyRepo{s} }

// QRCodes returns the QR code repository.
func (s *Store) QRCodes() types.QRCodeRepository { return qrRepo{s} }

func (s *Store) timestamp() time.Time { return s.now().UTC() }

// commit runs the commit hook for a write already applied in memory. If the
// hook fails, undo reverts the write under the store lock. The caller holds
// writeMu, so no other write can land between the two.
func (s *Store) commit(ctx context.Context, undo func()) error {
	if s.onSave == nil {
		return nil
	}
	if err := s.onSave(ctx); err != nil {
		s.mu.Lock()
		undo()
		s.mu.Unlock()
		return fmt.Errorf("commit hook: %w", err)
	}
	return nil
}

func sortTraces(recs []types.TraceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].TraceID < recs[j].TraceID
	})
}

func sortSuppliers(sups []types.Supplier) {
	sort.Slice(sups, func(i, j int) bool {
		if sups[i].Name != sups[j].Name {
			return sups[i].Name < sups[j].Name
		}
		return sups[i].SupplierID < sups[j].SupplierID
	})
}

type traceRepo struct{ s *Store }

func (r traceRepo) ListByProduct(_ context.Context, productID string) ([]types.TraceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.attached {
		return nil, types.ErrStoreDetached
	}
	out := []types.TraceRecord{}
	for _, rec := range r.s.traces {
		if rec.ProductID == productID {
			out = append(out, rec)
		}
	}
	sortTraces(out)
	return out, nil
}

func (r traceRepo) Get(_ context.Context, traceID string) (types.TraceRecord, error) {
	if traceID == "" {
		return types.TraceRecord{}, types.ErrInvalidID
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.attached {
		return types.TraceRecord{}, types.ErrStoreDetached
	}
	rec, ok := r.s.traces[traceID]
	if !ok {
		return types.TraceRecord{}, types.ErrNotFound
	}
	return rec, nil
}

func (r traceRepo) Create(ctx context.Context, rec types.TraceRecord) (types.TraceRecord, error) {
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	r.s.mu.Lock()
	if !r.s.attached {
		r.s.mu.Unlock()
		return types.TraceRecord{}, types.ErrStoreDetached
	}
	if rec.TraceID == "" {
		rec.TraceID = types.NewID()
	}
	if _, exists := r.s.traces[rec.TraceID]; exists {
		r.s.mu.Unlock()
		return types.TraceRecord{}, types.ErrDuplicateID
	}
	now := r.s.timestamp()
	rec.CreatedAt = now
	rec.LastUpdatedAt = now
	r.s.traces[rec.TraceID] = rec
	r.s.mu.Unlock()
	if err := r.s.commit(ctx, func() { delete(r.s.traces, rec.TraceID) }); err != nil {
		return types.TraceRecord{}, err
	}
	return rec, nil
}

func (r traceRepo) Update(ctx context.Context, rec types.TraceRecord) (types.TraceRecord, error) {
	if rec.TraceID == "" {
		return types.TraceRecord{}, types.ErrInvalidID
	}
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	r.s.mu.Lock()
	if !r.s.attached {
		r.s.mu.Unlock()
		return types.TraceRecord{}, types.ErrStoreDetached
	}
	old, ok := r.s.traces[rec.TraceID]
	if !ok {
		r.s.mu.Unlock()
		return types.TraceRecord{}, types.ErrNotFound
	}
	rec.CreatedAt = old.CreatedAt
	rec.LastUpdatedAt = r.s.timestamp()
	r.s.traces[rec.TraceID] = rec
	r.s.mu.Unlock()
	if err := r.s.commit(ctx, func() { r.s.traces[old.TraceID] = old }); err != nil {
		return types.TraceRecord{}, err
	}
	return rec, nil
}

func (r traceRepo) Delete(ctx context.Context, traceID string) error {
	if traceID == "" {
		return types.ErrInvalidID
	}
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	r.s.mu.Lock()
	if !r.s.attached {
		r.s.mu.Unlock()
		return types.ErrStoreDetached
	}
	old, ok := r.s.traces[traceID]
	if !ok {
		r.s.mu.Unlock()
		return types.ErrNotFound
	}
	delete(r.s.traces, traceID)
	r.s.mu.Unlock()
	return r.s.commit(ctx, func() { r.s.traces[traceID] = old })
}

type supplierRepo struct{ s *Store }

func (r supplierRepo) Get(_ context.Context, supplierID string) (types.Supplier, error) {
	if supplierID == "" {
		return types.Supplier{}, types.ErrInvalidID
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.attached {
		return types.Supplier{}, types.ErrStoreDetached
	}
	sup, ok := r.s.suppliers[supplierID]
	if !ok {
		return types.Supplier{}, types.ErrNotFound
	}
	return sup, nil
}

func (r supplierRepo) List(_ context.Context) ([]types.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.attached {
		return nil, types.ErrStoreDetached
	}
	out := make([]types.Supplier, 0, len(r.s.suppliers))
	for _, sup := range r.s.suppliers {
		out = append(out, sup)
	}
	sortSuppliers(out)
	return out, nil
}

func (r supplierRepo) Create(ctx context.Context, sup types.Supplier) (types.Supplier, error) {
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	r.s.mu.Lock()
	if !r.s.attached {
		r.s.mu.Unlock()
		return types.Supplier{}, types.ErrStoreDetached
	}
	if sup.SupplierID == "" {
		sup.SupplierID = types.NewID()
	}
	if _, exists := r.s.suppliers[sup.SupplierID]; exists {
		r.s.mu.Unlock()
		return types.Supplier{}, types.ErrDuplicateID
	}
	sup.CreatedAt = r.s.timestamp()
	r.s.suppliers[sup.SupplierID] = sup
	r.s.mu.Unlock()
	if err := r.s.commit(ctx, func() { delete(r.s.suppliers, sup.SupplierID) }); err != nil {
		return types.Supplier{}, err
	}
	return sup, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Append(ctx context.Context, c types.StatusChange) (types.StatusChange, error) {
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	r.s.mu.Lock()
	if !r.s.attached {
		r.s.mu.Unlock()
		return types.StatusChange{}, types.ErrStoreDetached
	}
	if c.ChangeID == "" {
		c.ChangeID = types.NewID()
	}
	if c.ChangedAt.IsZero() {
		c.ChangedAt = r.s.timestamp()
	}
	n := len(r.s.history)
	r.s.history = append(r.s.history, c)
	r.s.mu.Unlock()
	if err := r.s.commit(ctx, func() { r.s.history = r.s.history[:n] }); err != nil {
		return types.StatusChange{}, err
	}
	return c, nil
}

func (r historyRepo) ListByTrace(_ context.Context, traceID string) ([]types.StatusChange, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.attached {
		return nil, types.ErrStoreDetached
	}
	out := []types.StatusChange{}
	for _, c := range r.s.history {
		if c.TraceID == traceID {
			out = append(out, c)
		}
	}
	return out, nil
}

type qrRepo struct{ s *Store }

func (r qrRepo) Create(ctx context.Context, q types.QRCodeLog) (types.QRCodeLog, error) {
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	r.s.mu.Lock()
	if !r.s.attached {
		r.s.mu.Unlock()
		return types.QRCodeLog{}, types.ErrStoreDetached
	}
	if q.QRID == "" {
		q.QRID = types.NewID()
	}
	q.CreatedAt = r.s.timestamp()
	n := len(r.s.qrcodes)
	r.s.qrcodes = append(r.s.qrcodes, q)
	r.s.mu.Unlock()
	if err := r.s.commit(ctx, func() { r.s.qrcodes = r.s.qrcodes[:n] }); err != nil {
		return types.QRCodeLog{}, err
	}
	return q, nil
}

func (r qrRepo) ListByProduct(_ context.Context, productID string) ([]types.QRCodeLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if !r.s.attached {
		return nil, types.ErrStoreDetached
	}
	out := []types.QRCodeLog{}
	for _, q := range r.s.qrcodes {
		if q.ProductID == productID {
			out = append(out, q)
		}
	}
	return out, nil
}
