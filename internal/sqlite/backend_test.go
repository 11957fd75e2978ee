package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/passport/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func attach(t *testing.T, dir string, cfg types.SQLiteConfig) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir, SQLite: cfg}))
	return b
}

func record(product, name, parent string) types.TraceRecord {
	return types.TraceRecord{
		ProductID:        product,
		MaterialName:     name,
		MaterialType:     types.MaterialSubcomponent,
		ParentTraceID:    parent,
		Quantity:         12.5,
		QuantityUnit:     types.UnitPercent,
		Tier:             1,
		OriginCountry:    "SE",
		ComplianceStatus: types.StatusInvited,
		ConflictMinerals: true,
	}
}

func TestBackend_AttachDetach(t *testing.T) {
	dir := t.TempDir()
	b := attach(t, dir, types.SQLiteConfig{})

	_, err := os.Stat(filepath.Join(dir, dbFile))
	assert.NoError(t, err, "database file created")
	for _, m := range tableMappings {
		_, err := os.Stat(filepath.Join(dir, m.file))
		assert.NoError(t, err, "%s created", m.file)
	}

	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}), types.ErrAlreadyAttached)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")

	_, err = b.Traces().ListByProduct(context.Background(), "p")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}

func TestBackend_AttachValidatesConfig(t *testing.T) {
	b := NewBackend()
	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir(), SQLite: types.SQLiteConfig{SyncStrategy: "sometimes"}})
	assert.ErrorIs(t, err, types.ErrSyncStrategyUnknown)
}

func TestTraceRepo_CRUD(t *testing.T) {
	b := attach(t, t.TempDir(), types.SQLiteConfig{})
	defer b.Detach()
	ctx := context.Background()
	repo := b.Traces()

	root, err := repo.Create(ctx, record("p1", "Frame", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, root.TraceID)

	child := record("p1", "Bolt", root.TraceID)
	child.Tier = 2
	child.SupplierID = "sup-1"
	child, err = repo.Create(ctx, child)
	require.NoError(t, err)

	got, err := repo.Get(ctx, child.TraceID)
	require.NoError(t, err)
	assert.Equal(t, root.TraceID, got.ParentTraceID)
	assert.Equal(t, "sup-1", got.SupplierID)
	assert.Equal(t, 12.5, got.Quantity)
	assert.True(t, got.ConflictMinerals)
	assert.False(t, got.IsRecycled)
	assert.True(t, child.CreatedAt.Equal(got.CreatedAt))

	got.ComplianceStatus = types.StatusPending
	got.IsRecycled = true
	updated, err := repo.Update(ctx, got)
	require.NoError(t, err)
	assert.True(t, updated.CreatedAt.Equal(child.CreatedAt))

	list, err := repo.ListByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, root.TraceID, list[0].TraceID)
	assert.Equal(t, types.StatusPending, list[1].ComplianceStatus)
	assert.True(t, list[1].IsRecycled)

	require.NoError(t, repo.Delete(ctx, child.TraceID))
	_, err = repo.Get(ctx, child.TraceID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, child.TraceID), types.ErrNotFound)

	_, err = repo.Update(ctx, child)
	assert.ErrorIs(t, err, types.ErrNotFound)

	dup := record("p1", "Frame", "")
	dup.TraceID = root.TraceID
	_, err = repo.Create(ctx, dup)
	assert.ErrorIs(t, err, types.ErrDuplicateID)

	empty, err := repo.ListByProduct(ctx, "nope")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestBackend_JSONLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b := attach(t, dir, types.SQLiteConfig{})
	rec, err := b.Traces().Create(ctx, record("p1", "Cell", ""))
	require.NoError(t, err)
	sup, err := b.Suppliers().Create(ctx, types.Supplier{Name: "Cells AB", ContactEmail: "ops@cells.example", Country: "SE"})
	require.NoError(t, err)
	_, err = b.History().Append(ctx, types.StatusChange{TraceID: rec.TraceID, From: types.StatusInvited, To: types.StatusPending, Actor: types.RoleCompany, Note: "invited"})
	require.NoError(t, err)
	_, err = b.QRCodes().Create(ctx, types.QRCodeLog{ProductID: "p1", VersionID: "v1", URL: "https://dpp.example/public/products/p1"})
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	data, err := os.ReadFile(filepath.Join(dir, "trace_records.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conflict_minerals_flag":true`)

	b2 := attach(t, dir, types.SQLiteConfig{})
	defer b2.Detach()

	got, err := b2.Traces().Get(ctx, rec.TraceID)
	require.NoError(t, err)
	assert.Equal(t, rec.MaterialName, got.MaterialName)
	assert.True(t, got.ConflictMinerals)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	gotSup, err := b2.Suppliers().Get(ctx, sup.SupplierID)
	require.NoError(t, err)
	assert.Equal(t, "ops@cells.example", gotSup.ContactEmail)

	changes, err := b2.History().ListByTrace(ctx, rec.TraceID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "invited", changes[0].Note)

	codes, err := b2.QRCodes().ListByProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "v1", codes[0].VersionID)
}

func TestBackend_LoadSkipsMalformedAndUnknownFields(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		`{"trace_id":"t1","product_id":"p","material_name":"Glass","material_type":"Raw","quantity":3,"quantity_unit":"kg","tier":1,"origin_country":"IT","compliance_status":"Verified","conflict_minerals_flag":false,"is_recycled_material":true,"created_at":"2026-01-01T00:00:00Z","last_updated_at":"2026-01-01T00:00:00Z","future_field":42}`,
		`not json`,
		``,
		`{"trace_id":"t2","product_id":"p"}`,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trace_records.jsonl"), []byte(strings.Join(lines, "\n")), 0o644))

	b := attach(t, dir, types.SQLiteConfig{})
	defer b.Detach()

	list, err := b.Traces().ListByProduct(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].TraceID)
	assert.True(t, list[0].IsRecycled)
	assert.Equal(t, 1, list[0].Tier)
}

func TestBackend_OnCloseDefersJSONL(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := attach(t, dir, types.SQLiteConfig{SyncStrategy: types.SyncOnClose})

	_, err := b.Traces().Create(ctx, record("p", "Foil", ""))
	require.NoError(t, err)
	_, err = b.Traces().Create(ctx, record("p", "Tab", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, b.pending(), "rewrites of one table collapse")

	data, err := os.ReadFile(filepath.Join(dir, "trace_records.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, b.Detach())
	records, err := readJSONL(filepath.Join(dir, "trace_records.jsonl"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBackend_BatchFlushesOnSize(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := attach(t, dir, types.SQLiteConfig{SyncStrategy: types.SyncBatch, BatchSize: 2, BatchInterval: time.Hour})
	defer b.Detach()

	_, err := b.Traces().Create(ctx, record("p", "One", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, b.pending())

	_, err = b.Suppliers().Create(ctx, types.Supplier{Name: "Two Ltd"})
	require.NoError(t, err)
	assert.Equal(t, 0, b.pending())

	records, err := readJSONL(filepath.Join(dir, "suppliers.jsonl"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBackend_BatchFlushesOnInterval(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	b := attach(t, dir, types.SQLiteConfig{SyncStrategy: types.SyncBatch, BatchSize: 100, BatchInterval: 20 * time.Millisecond})
	defer b.Detach()

	_, err := b.Traces().Create(ctx, record("p", "Timed", ""))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return b.pending() == 0 }, 2*time.Second, 10*time.Millisecond)
	records, err := readJSONL(filepath.Join(dir, "trace_records.jsonl"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriteJSONLIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.jsonl")
	require.NoError(t, writeJSONL(path, nil))
	require.NoError(t, writeJSONL(path, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are renamed away")
	assert.Equal(t, "x.jsonl", entries[0].Name())
}
