package types

import "context"

// TraceRepository stores trace records. Implementations are safe for
// concurrent use; concurrent updates of one record are last-write-wins.
type TraceRepository interface {
	// ListByProduct returns every record of the product, ordered by creation
	// time. Returns an empty slice (not nil) when there are none.
	ListByProduct(ctx context.Context, productID string) ([]TraceRecord, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, traceID string) (TraceRecord, error)

	// Create stores a new record. An empty TraceID is replaced with a UUID v7.
	// CreatedAt and LastUpdatedAt are set by the repository.
	Create(ctx context.Context, rec TraceRecord) (TraceRecord, error)

	// Update replaces the record with the same TraceID. Returns ErrNotFound
	// when it does not exist. LastUpdatedAt is set by the repository.
	Update(ctx context.Context, rec TraceRecord) (TraceRecord, error)

	// Delete removes the record with the given ID or returns ErrNotFound.
	Delete(ctx context.Context, traceID string) error
}

// SupplierRepository stores suppliers.
type SupplierRepository interface {
	Get(ctx context.Context, supplierID string) (Supplier, error)
	List(ctx context.Context) ([]Supplier, error)
	Create(ctx context.Context, s Supplier) (Supplier, error)
}

// HistoryRepository stores the status change audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, c StatusChange) (StatusChange, error)
	ListByTrace(ctx context.Context, traceID string) ([]StatusChange, error)
}

// QRCodeRepository stores issued QR codes.
type QRCodeRepository interface {
	Create(ctx context.Context, q QRCodeLog) (QRCodeLog, error)
	ListByProduct(ctx context.Context, productID string) ([]QRCodeLog, error)
}

// Store groups the repositories of one backend. Callers attach to a backend,
// use the repositories, and detach when done.
type Store interface {
	// Attach connects the store to the backend described by config.
	// Returns ErrAlreadyAttached if called while attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach the
	// repositories return ErrStoreDetached.
	Detach() error

	Traces() TraceRepository
	Suppliers() SupplierRepository
	History() HistoryRepository
	QRCodes() QRCodeRepository
}
