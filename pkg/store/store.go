// Package store provides the public factory for passport storage backends.
// The backends themselves stay internal; callers get a types.Store.
//
// Example:
//
//	s, err := store.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".passport-data",
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.Detach()
package store

import (
	"fmt"

	"github.com/mesh-intelligence/passport/internal/memory"
	"github.com/mesh-intelligence/passport/internal/postgres"
	"github.com/mesh-intelligence/passport/internal/sqlite"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// New returns an unattached store for the named backend.
func New(backend string) (types.Store, error) {
	switch backend {
	case types.BackendMemory:
		return memory.NewStore(), nil
	case types.BackendSQLite:
		return sqlite.NewBackend(), nil
	case types.BackendPostgres:
		return postgres.NewStore(), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrBackendUnknown, backend)
	}
}

// Open creates the store named by config.Backend and attaches it. The
// caller must Detach it.
func Open(config types.Config) (types.Store, error) {
	s, err := New(config.Backend)
	if err != nil {
		return nil, err
	}
	if err := s.Attach(config); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", config.Backend, err)
	}
	return s, nil
}
