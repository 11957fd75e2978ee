package sqlite

// Table names.
const (
	tableTraces    = "trace_records"
	tableSuppliers = "suppliers"
	tableHistory   = "status_history"
	tableQRCodes   = "qr_codes"
)

// Schema DDL for all tables. Parent links carry no foreign key: a record whose
// parent is missing must still load so that it can be reported.
const (
	createSuppliers = `CREATE TABLE suppliers (
    supplier_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    contact_email TEXT,
    country TEXT,
    created_at TEXT NOT NULL
);`

	createTraceRecords = `CREATE TABLE trace_records (
    trace_id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    material_id TEXT,
    material_name TEXT NOT NULL,
    material_type TEXT NOT NULL,
    parent_trace_id TEXT,
    quantity REAL NOT NULL,
    quantity_unit TEXT NOT NULL,
    tier INTEGER NOT NULL,
    supplier_id TEXT,
    origin_country TEXT NOT NULL,
    compliance_status TEXT NOT NULL,
    conflict_minerals_flag INTEGER NOT NULL DEFAULT 0,
    is_recycled_material INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    last_updated_at TEXT NOT NULL
);`

	createStatusHistory = `CREATE TABLE status_history (
    change_id TEXT PRIMARY KEY,
    trace_id TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    actor TEXT NOT NULL,
    note TEXT,
    changed_at TEXT NOT NULL
);`

	createQRCodes = `CREATE TABLE qr_codes (
    qr_id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    version_id TEXT,
    url TEXT NOT NULL,
    created_at TEXT NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxTraceProduct  = `CREATE INDEX idx_trace_records_product ON trace_records(product_id);`
	idxTraceParent   = `CREATE INDEX idx_trace_records_parent ON trace_records(parent_trace_id);`
	idxHistoryTrace  = `CREATE INDEX idx_status_history_trace ON status_history(trace_id);`
	idxQRCodeProduct = `CREATE INDEX idx_qr_codes_product ON qr_codes(product_id);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createSuppliers,
	createTraceRecords,
	createStatusHistory,
	createQRCodes,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxTraceProduct,
	idxTraceParent,
	idxHistoryTrace,
	idxQRCodeProduct,
}
