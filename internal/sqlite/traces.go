package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/passport/pkg/types"
)

const traceColumns = `trace_id, product_id, material_id, material_name, material_type,
    parent_trace_id, quantity, quantity_unit, tier, supplier_id, origin_country,
    compliance_status, conflict_minerals_flag, is_recycled_material, created_at, last_updated_at`

// traceRepo implements types.TraceRepository on the trace_records table.
type traceRepo struct {
	b *Backend
}

func (r *traceRepo) ListByProduct(ctx context.Context, productID string) ([]types.TraceRecord, error) {
	out := []types.TraceRecord{}
	err := r.b.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT "+traceColumns+" FROM trace_records WHERE product_id = ? ORDER BY rowid",
			productID,
		)
		if err != nil {
			return fmt.Errorf("listing trace records: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanTrace(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *traceRepo) Get(ctx context.Context, traceID string) (types.TraceRecord, error) {
	if traceID == "" {
		return types.TraceRecord{}, types.ErrInvalidID
	}
	var rec types.TraceRecord
	err := r.b.read(func(db *sql.DB) error {
		var err error
		rec, err = scanTrace(db.QueryRowContext(ctx,
			"SELECT "+traceColumns+" FROM trace_records WHERE trace_id = ?", traceID,
		))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return types.TraceRecord{}, types.ErrNotFound
	}
	if err != nil {
		return types.TraceRecord{}, fmt.Errorf("getting trace record %s: %w", traceID, err)
	}
	return rec, nil
}

func (r *traceRepo) Create(ctx context.Context, rec types.TraceRecord) (types.TraceRecord, error) {
	if rec.TraceID == "" {
		rec.TraceID = types.NewID()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.LastUpdatedAt = now

	err := r.b.write(tableTraces, func(tx *sql.Tx) error {
		if exists(ctx, tx, "SELECT 1 FROM trace_records WHERE trace_id = ?", rec.TraceID) {
			return types.ErrDuplicateID
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO trace_records ("+traceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			traceArgs(rec)...,
		)
		if err != nil {
			return fmt.Errorf("inserting trace record: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.TraceRecord{}, err
	}
	return rec, nil
}

func (r *traceRepo) Update(ctx context.Context, rec types.TraceRecord) (types.TraceRecord, error) {
	if rec.TraceID == "" {
		return types.TraceRecord{}, types.ErrInvalidID
	}
	rec.LastUpdatedAt = time.Now().UTC()

	err := r.b.write(tableTraces, func(tx *sql.Tx) error {
		var created string
		err := tx.QueryRowContext(ctx, "SELECT created_at FROM trace_records WHERE trace_id = ?", rec.TraceID).Scan(&created)
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking trace record: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		args := traceArgs(rec)
		_, err = tx.ExecContext(ctx, `UPDATE trace_records SET
    product_id = ?, material_id = ?, material_name = ?, material_type = ?,
    parent_trace_id = ?, quantity = ?, quantity_unit = ?, tier = ?, supplier_id = ?,
    origin_country = ?, compliance_status = ?, conflict_minerals_flag = ?,
    is_recycled_material = ?, created_at = ?, last_updated_at = ?
    WHERE trace_id = ?`,
			append(args[1:], rec.TraceID)...,
		)
		if err != nil {
			return fmt.Errorf("updating trace record: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.TraceRecord{}, err
	}
	return rec, nil
}

func (r *traceRepo) Delete(ctx context.Context, traceID string) error {
	if traceID == "" {
		return types.ErrInvalidID
	}
	return r.b.write(tableTraces, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM trace_records WHERE trace_id = ?", traceID)
		if err != nil {
			return fmt.Errorf("deleting trace record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrace(row rowScanner) (types.TraceRecord, error) {
	var (
		rec                          types.TraceRecord
		materialID, parent, supplier sql.NullString
		created, updated             string
	)
	err := row.Scan(
		&rec.TraceID, &rec.ProductID, &materialID, &rec.MaterialName, &rec.MaterialType,
		&parent, &rec.Quantity, &rec.QuantityUnit, &rec.Tier, &supplier, &rec.OriginCountry,
		&rec.ComplianceStatus, &rec.ConflictMinerals, &rec.IsRecycled, &created, &updated,
	)
	if err != nil {
		return types.TraceRecord{}, err
	}
	rec.MaterialID = materialID.String
	rec.ParentTraceID = parent.String
	rec.SupplierID = supplier.String
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return types.TraceRecord{}, err
	}
	if rec.LastUpdatedAt, err = parseTime(updated); err != nil {
		return types.TraceRecord{}, err
	}
	return rec, nil
}

// traceArgs returns the column values of rec in traceColumns order.
func traceArgs(rec types.TraceRecord) []any {
	return []any{
		rec.TraceID, rec.ProductID, nullable(rec.MaterialID), rec.MaterialName, string(rec.MaterialType),
		nullable(rec.ParentTraceID), rec.Quantity, string(rec.QuantityUnit), rec.Tier,
		nullable(rec.SupplierID), rec.OriginCountry, string(rec.ComplianceStatus),
		rec.ConflictMinerals, rec.IsRecycled, formatTime(rec.CreatedAt), formatTime(rec.LastUpdatedAt),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) bool {
	var one int
	return tx.QueryRowContext(ctx, query, args...).Scan(&one) == nil
}
