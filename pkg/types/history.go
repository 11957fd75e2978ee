package types

import "time"

// StatusChange records one compliance status transition of a trace record.
// Entries are append-only.
type StatusChange struct {
	ChangeID  string           `json:"change_id"`
	TraceID   string           `json:"trace_id"`
	From      ComplianceStatus `json:"from"`
	To        ComplianceStatus `json:"to"`
	Actor     Role             `json:"actor"`
	Note      string           `json:"note,omitempty"`
	ChangedAt time.Time        `json:"changed_at"`
}
