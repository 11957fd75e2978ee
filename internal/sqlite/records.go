package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/passport/pkg/types"
)

type supplierRepo struct {
	b *Backend
}

func (r *supplierRepo) Get(ctx context.Context, supplierID string) (types.Supplier, error) {
	if supplierID == "" {
		return types.Supplier{}, types.ErrInvalidID
	}
	var s types.Supplier
	err := r.b.read(func(db *sql.DB) error {
		var err error
		s, err = scanSupplier(db.QueryRowContext(ctx,
			"SELECT supplier_id, name, contact_email, country, created_at FROM suppliers WHERE supplier_id = ?",
			supplierID,
		))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return types.Supplier{}, types.ErrNotFound
	}
	if err != nil {
		return types.Supplier{}, fmt.Errorf("getting supplier %s: %w", supplierID, err)
	}
	return s, nil
}

func (r *supplierRepo) List(ctx context.Context) ([]types.Supplier, error) {
	out := []types.Supplier{}
	err := r.b.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT supplier_id, name, contact_email, country, created_at FROM suppliers ORDER BY name, supplier_id",
		)
		if err != nil {
			return fmt.Errorf("listing suppliers: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			s, err := scanSupplier(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *supplierRepo) Create(ctx context.Context, s types.Supplier) (types.Supplier, error) {
	if s.SupplierID == "" {
		s.SupplierID = types.NewID()
	}
	s.CreatedAt = time.Now().UTC()
	err := r.b.write(tableSuppliers, func(tx *sql.Tx) error {
		if exists(ctx, tx, "SELECT 1 FROM suppliers WHERE supplier_id = ?", s.SupplierID) {
			return types.ErrDuplicateID
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO suppliers (supplier_id, name, contact_email, country, created_at) VALUES (?, ?, ?, ?, ?)",
			s.SupplierID, s.Name, nullable(s.ContactEmail), nullable(s.Country), formatTime(s.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting supplier: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Supplier{}, err
	}
	return s, nil
}

func scanSupplier(row rowScanner) (types.Supplier, error) {
	var (
		s              types.Supplier
		email, country sql.NullString
		created        string
	)
	if err := row.Scan(&s.SupplierID, &s.Name, &email, &country, &created); err != nil {
		return types.Supplier{}, err
	}
	s.ContactEmail = email.String
	s.Country = country.String
	var err error
	s.CreatedAt, err = parseTime(created)
	return s, err
}

type historyRepo struct {
	b *Backend
}

func (r *historyRepo) Append(ctx context.Context, c types.StatusChange) (types.StatusChange, error) {
	if c.ChangeID == "" {
		c.ChangeID = types.NewID()
	}
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now().UTC()
	}
	err := r.b.write(tableHistory, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO status_history (change_id, trace_id, from_status, to_status, actor, note, changed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			c.ChangeID, c.TraceID, string(c.From), string(c.To), string(c.Actor), nullable(c.Note), formatTime(c.ChangedAt),
		)
		if err != nil {
			return fmt.Errorf("appending status change: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.StatusChange{}, err
	}
	return c, nil
}

func (r *historyRepo) ListByTrace(ctx context.Context, traceID string) ([]types.StatusChange, error) {
	out := []types.StatusChange{}
	err := r.b.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT change_id, trace_id, from_status, to_status, actor, note, changed_at FROM status_history WHERE trace_id = ? ORDER BY rowid",
			traceID,
		)
		if err != nil {
			return fmt.Errorf("listing status history: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c       types.StatusChange
				note    sql.NullString
				changed string
			)
			if err := rows.Scan(&c.ChangeID, &c.TraceID, &c.From, &c.To, &c.Actor, &note, &changed); err != nil {
				return err
			}
			c.Note = note.String
			if c.ChangedAt, err = parseTime(changed); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type qrRepo struct {
	b *Backend
}

func (r *qrRepo) Create(ctx context.Context, q types.QRCodeLog) (types.QRCodeLog, error) {
	if q.QRID == "" {
		q.QRID = types.NewID()
	}
	q.CreatedAt = time.Now().UTC()
	err := r.b.write(tableQRCodes, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO qr_codes (qr_id, product_id, version_id, url, created_at) VALUES (?, ?, ?, ?, ?)",
			q.QRID, q.ProductID, nullable(q.VersionID), q.URL, formatTime(q.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting QR code: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.QRCodeLog{}, err
	}
	return q, nil
}

func (r *qrRepo) ListByProduct(ctx context.Context, productID string) ([]types.QRCodeLog, error) {
	out := []types.QRCodeLog{}
	err := r.b.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT qr_id, product_id, version_id, url, created_at FROM qr_codes WHERE product_id = ? ORDER BY rowid",
			productID,
		)
		if err != nil {
			return fmt.Errorf("listing QR codes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				q       types.QRCodeLog
				version sql.NullString
				created string
			)
			if err := rows.Scan(&q.QRID, &q.ProductID, &version, &q.URL, &created); err != nil {
				return err
			}
			q.VersionID = version.String
			if q.CreatedAt, err = parseTime(created); err != nil {
				return err
			}
			out = append(out, q)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
