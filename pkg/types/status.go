package types

import "strings"

// ComplianceStatus is the verification state of a trace record.
type ComplianceStatus string

// Compliance states.
const (
	StatusPending  ComplianceStatus = "Pending"
	StatusVerified ComplianceStatus = "Verified"
	StatusRejected ComplianceStatus = "Rejected"
	StatusInvited  ComplianceStatus = "Invited"
)

// AllStatuses lists the compliance states in display order.
var AllStatuses = []ComplianceStatus{
	StatusInvited,
	StatusPending,
	StatusVerified,
	StatusRejected,
}

// transitions is the one table of legal status changes. Self transitions are
// handled separately by CanTransition.
var transitions = map[ComplianceStatus][]ComplianceStatus{
	StatusInvited:  {StatusPending},
	StatusPending:  {StatusVerified, StatusRejected},
	StatusRejected: {StatusPending},
	StatusVerified: {StatusPending},
}

// Valid reports whether s is a recognized compliance status.
func (s ComplianceStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a record in state from may move to state to.
// Moving to the current state is always allowed.
func CanTransition(from, to ComplianceStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the states reachable from s in one step, excluding s.
func NextStatuses(s ComplianceStatus) []ComplianceStatus {
	next := transitions[s]
	out := make([]ComplianceStatus, len(next))
	copy(out, next)
	return out
}

// ParseStatus maps a case-insensitive name to a ComplianceStatus.
func ParseStatus(name string) (ComplianceStatus, error) {
	for _, s := range AllStatuses {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}
