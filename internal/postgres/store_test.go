package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/passport/internal/memory"
	"github.com/mesh-intelligence/passport/pkg/types"
)

type recordingExec struct {
	queries []string
	args    [][]any
	failOn  int
}

func (r *recordingExec) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.queries = append(r.queries, query)
	r.args = append(r.args, args)
	if r.failOn > 0 && len(r.queries) == r.failOn {
		return nil, errors.New("exec failed")
	}
	return nil, nil
}

func fixtureSnapshot() memory.Snapshot {
	return memory.Snapshot{
		Traces: []types.TraceRecord{{
			TraceID:          "t1",
			ProductID:        "p1",
			MaterialName:     "Lithium",
			MaterialType:     types.MaterialRaw,
			Quantity:         4,
			QuantityUnit:     types.UnitKilogram,
			Tier:             1,
			OriginCountry:    "CL",
			ComplianceStatus: types.StatusVerified,
		}},
		Suppliers: []types.Supplier{{SupplierID: "s1", Name: "Andes Mining"}},
		History:   []types.StatusChange{{ChangeID: "c1", TraceID: "t1", From: types.StatusPending, To: types.StatusVerified, Actor: types.RoleVerifier}},
		QRCodes:   []types.QRCodeLog{{QRID: "q1", ProductID: "p1", URL: "https://dpp.example/public/products/p1"}},
	}
}

func TestWriteBucketsUpsertsEveryBucket(t *testing.T) {
	rec := &recordingExec{}
	snap := fixtureSnapshot()
	require.NoError(t, writeBuckets(context.Background(), rec, snap))
	require.Len(t, rec.queries, len(buckets))

	var decoded memory.Snapshot
	for i, args := range rec.args {
		assert.Contains(t, rec.queries[i], "ON CONFLICT(bucket)")
		bucket := args[0].(string)
		assert.Equal(t, buckets[i], bucket)
		require.NoError(t, decodeBucket(&decoded, bucket, args[1].([]byte)))
	}
	if diff := cmp.Diff(snap, decoded); diff != "" {
		t.Errorf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteBucketsStopsOnError(t *testing.T) {
	rec := &recordingExec{failOn: 2}
	err := writeBuckets(context.Background(), rec, fixtureSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert suppliers")
	assert.Len(t, rec.queries, 2)
}

func TestDecodeBucket(t *testing.T) {
	var snap memory.Snapshot
	assert.NoError(t, decodeBucket(&snap, "unknown", []byte(`[1]`)))
	assert.NoError(t, decodeBucket(&snap, bucketTraces, nil))
	assert.Error(t, decodeBucket(&snap, bucketTraces, []byte(`{`)))
}

func TestAttachRequiresDSN(t *testing.T) {
	s := NewStore()
	err := s.Attach(types.Config{Backend: types.BackendPostgres})
	assert.ErrorIs(t, err, types.ErrDSNEmpty)
}

func TestAttachReportsOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("no route")
	})
	defer restore()

	s := NewStore()
	err := s.Attach(types.Config{Backend: types.BackendPostgres, PostgresDSN: "postgres://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres")
	assert.NoError(t, s.Detach())
}

// TestStoreAgainstDatabase runs when PASSPORT_TEST_POSTGRES_DSN points at a
// disposable database.
func TestStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("PASSPORT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PASSPORT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	cfg := types.Config{Backend: types.BackendPostgres, PostgresDSN: dsn}

	s := NewStore()
	require.NoError(t, s.Attach(cfg))
	_, err := s.DB().ExecContext(ctx, `DELETE FROM passport_state`)
	require.NoError(t, err)

	rec, err := s.Traces().Create(ctx, fixtureSnapshot().Traces[0])
	require.NoError(t, err)
	require.NoError(t, s.Detach())

	s2 := NewStore()
	require.NoError(t, s2.Attach(cfg))
	defer s2.Detach()
	got, err := s2.Traces().Get(ctx, rec.TraceID)
	require.NoError(t, err)
	assert.Equal(t, "Lithium", got.MaterialName)
}
