package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ComplianceStatus
		want     bool
	}{
		{StatusInvited, StatusPending, true},
		{StatusInvited, StatusVerified, false},
		{StatusInvited, StatusRejected, false},
		{StatusPending, StatusVerified, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusInvited, false},
		{StatusRejected, StatusPending, true},
		{StatusRejected, StatusVerified, false},
		{StatusVerified, StatusPending, true},
		{StatusVerified, StatusRejected, false},
		{StatusVerified, StatusVerified, true},
		{StatusRejected, StatusRejected, true},
		{"Unknown", StatusPending, false},
		{StatusPending, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRecordSetStatus(t *testing.T) {
	tests := []struct {
		name       string
		initial    ComplianceStatus
		target     ComplianceStatus
		wantErr    error
		wantStatus ComplianceStatus
	}{
		{name: "pending to verified", initial: StatusPending, target: StatusVerified, wantStatus: StatusVerified},
		{name: "pending to rejected", initial: StatusPending, target: StatusRejected, wantStatus: StatusRejected},
		{name: "invited to pending", initial: StatusInvited, target: StatusPending, wantStatus: StatusPending},
		{name: "rejected back to pending", initial: StatusRejected, target: StatusPending, wantStatus: StatusPending},
		{name: "idempotent verified", initial: StatusVerified, target: StatusVerified, wantStatus: StatusVerified},
		{name: "rejected to verified is illegal", initial: StatusRejected, target: StatusVerified, wantErr: ErrInvalidTransition},
		{name: "invited to verified is illegal", initial: StatusInvited, target: StatusVerified, wantErr: ErrInvalidTransition},
		{name: "unknown target", initial: StatusPending, target: "Approved", wantErr: ErrInvalidStatus},
		{name: "empty target", initial: StatusPending, target: "", wantErr: ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TraceRecord{
				TraceID:          "t-1",
				ComplianceStatus: tt.initial,
				LastUpdatedAt:    time.Now().Add(-time.Hour),
			}
			before := r.LastUpdatedAt

			err := r.SetStatus(tt.target)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.initial, r.ComplianceStatus, "status should not change on error")
				assert.Equal(t, before, r.LastUpdatedAt)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, r.ComplianceStatus)
			assert.True(t, r.LastUpdatedAt.After(before), "LastUpdatedAt should be refreshed")
		})
	}
}

func TestSetStatusIdempotentKeepsOtherFields(t *testing.T) {
	r := TraceRecord{
		TraceID:          "t-1",
		ProductID:        "p-1",
		MaterialName:     "Copper",
		MaterialType:     MaterialRaw,
		Quantity:         2.5,
		QuantityUnit:     UnitKilogram,
		Tier:             2,
		OriginCountry:    "CL",
		ComplianceStatus: StatusVerified,
	}
	want := r

	assert.NoError(t, r.SetStatus(StatusVerified))
	r.LastUpdatedAt = want.LastUpdatedAt
	assert.Equal(t, want, r)
}

func TestNextStatuses(t *testing.T) {
	assert.ElementsMatch(t, []ComplianceStatus{StatusVerified, StatusRejected}, NextStatuses(StatusPending))
	assert.Empty(t, NextStatuses("nope"))

	next := NextStatuses(StatusInvited)
	next[0] = StatusVerified
	assert.Equal(t, []ComplianceStatus{StatusPending}, NextStatuses(StatusInvited), "caller must not alias the table")
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("verified")
	assert.NoError(t, err)
	assert.Equal(t, StatusVerified, s)

	_, err = ParseStatus("approved")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RoleVerifier.MayTransitionTo(StatusVerified))
	assert.True(t, RoleAdmin.MayTransitionTo(StatusRejected))
	assert.False(t, RoleSupplier.MayTransitionTo(StatusVerified))
	assert.False(t, RoleCompany.MayTransitionTo(StatusRejected))
	assert.True(t, RoleSupplier.MayTransitionTo(StatusPending))
	assert.False(t, RoleVerifier.MayTransitionTo(StatusInvited))

	r, err := ParseRole(" Verifier ")
	assert.NoError(t, err)
	assert.Equal(t, RoleVerifier, r)
	_, err = ParseRole("guest")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
