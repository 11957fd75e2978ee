package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/passport/pkg/types"
)

func TestNew(t *testing.T) {
	for _, backend := range []string{types.BackendMemory, types.BackendSQLite, types.BackendPostgres} {
		s, err := New(backend)
		require.NoError(t, err, backend)
		assert.NotNil(t, s, backend)
	}

	_, err := New("")
	assert.ErrorIs(t, err, types.ErrBackendEmpty)

	_, err = New("cassandra")
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
	assert.ErrorContains(t, err, "cassandra")
}

func TestOpenSQLite(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Suppliers().Create(ctx, types.Supplier{SupplierID: "sup-1", Name: "Acme Metals", Country: "DE"})
	require.NoError(t, err)
	require.NoError(t, s.Detach())

	// A second store over the same directory sees the persisted supplier.
	s, err = Open(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	require.NoError(t, err)
	defer s.Detach()
	got, err := s.Suppliers().Get(ctx, "sup-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Metals", got.Name)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(types.Config{Backend: types.BackendPostgres})
	assert.ErrorIs(t, err, types.ErrDSNEmpty)
}
