package sqlite

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file: write a temp file in
// the same directory, fsync, then rename over the target.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(format string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// dumpTable reads every row of a table as a JSON object keyed by column name.
// Integer columns listed in bools are written as JSON booleans.
func dumpTable(db *sql.DB, m tableMapping) ([]json.RawMessage, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(m.columns, ", "), m.table))
	if err != nil {
		return nil, fmt.Errorf("querying %s for JSONL: %w", m.table, err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		values := make([]any, len(m.columns))
		ptrs := make([]any, len(m.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", m.table, err)
		}
		rec := make(map[string]any, len(m.columns))
		for i, col := range m.columns {
			v := values[i]
			if m.bools[col] {
				v = asBool(v)
			}
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[col] = v
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s row: %w", m.table, err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s for JSONL: %w", m.table, err)
	}
	return records, nil
}

func asBool(v any) bool {
	switch x := v.(type) {
	case int64:
		return x != 0
	case bool:
		return x
	case float64:
		return x != 0
	}
	return false
}

// persistTableJSONL rewrites the JSONL file of one table from SQLite.
func persistTableJSONL(db *sql.DB, dataDir string, m tableMapping) error {
	records, err := dumpTable(db, m)
	if err != nil {
		return err
	}
	return writeJSONL(filepath.Join(dataDir, m.file), records)
}

// initJSONLFiles creates empty JSONL files for tables that have none yet.
func initJSONLFiles(dataDir string) error {
	for _, m := range tableMappings {
		path := filepath.Join(dataDir, m.file)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking %s: %w", m.file, err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", m.file, err)
		}
	}
	return nil
}
