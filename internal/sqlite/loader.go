package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// tableMapping ties a SQLite table to its JSONL file.
type tableMapping struct {
	file    string
	table   string
	columns []string
	bools   map[string]bool
}

// tableMappings lists every persisted table. JSONL keys are the column names.
var tableMappings = []tableMapping{
	{
		file:    "suppliers.jsonl",
		table:   tableSuppliers,
		columns: []string{"supplier_id", "name", "contact_email", "country", "created_at"},
	},
	{
		file:  "trace_records.jsonl",
		table: tableTraces,
		columns: []string{
			"trace_id", "product_id", "material_id", "material_name", "material_type",
			"parent_trace_id", "quantity", "quantity_unit", "tier", "supplier_id",
			"origin_country", "compliance_status", "conflict_minerals_flag",
			"is_recycled_material", "created_at", "last_updated_at",
		},
		bools: map[string]bool{"conflict_minerals_flag": true, "is_recycled_material": true},
	},
	{
		file:    "status_history.jsonl",
		table:   tableHistory,
		columns: []string{"change_id", "trace_id", "from_status", "to_status", "actor", "note", "changed_at"},
	},
	{
		file:    "qr_codes.jsonl",
		table:   tableQRCodes,
		columns: []string{"qr_id", "product_id", "version_id", "url", "created_at"},
	},
}

func mappingFor(table string) tableMapping {
	for _, m := range tableMappings {
		if m.table == table {
			return m
		}
	}
	panic("sqlite: no JSONL mapping for table " + table)
}

// loadAllJSONL reads each JSONL file from dataDir and inserts its records into
// the matching table. Loading is transactional: either every file loads or the
// database stays empty. Malformed lines, rows that violate constraints, and
// unknown fields are skipped.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range tableMappings {
		records, err := readJSONL(filepath.Join(dataDir, m.file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.file, err)
		}
		if len(records) == 0 {
			continue
		}
		if err := insertRecords(tx, m, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", m.file, m.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed JSONL records into a table. Only the mapped
// columns are read from each object.
func insertRecords(tx *sql.Tx, m tableMapping, records []json.RawMessage) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(m.columns)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		m.table, strings.Join(m.columns, ", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", m.table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var obj map[string]any
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}
		args := make([]any, len(m.columns))
		for i, col := range m.columns {
			args[i] = obj[col]
			if m.bools[col] {
				args[i] = asBool(obj[col])
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			continue
		}
	}
	return nil
}
