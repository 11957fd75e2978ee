// Package types defines the trace record, supplier and audit entities, the
// repository interfaces that store them, the compliance status state machine,
// and the standard errors for the passport traceability system.
package types
