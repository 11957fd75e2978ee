package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() TraceRecord {
	return TraceRecord{
		TraceID:          "t-1",
		ProductID:        "prod-1",
		MaterialID:       "mat-1",
		MaterialName:     "Aluminium housing",
		MaterialType:     MaterialAssembly,
		Quantity:         1.2,
		QuantityUnit:     UnitKilogram,
		Tier:             1,
		OriginCountry:    "DE",
		ComplianceStatus: StatusPending,
	}
}

func TestTraceRecordValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *TraceRecord)
		wantErr   error
		wantField string
	}{
		{name: "valid record", mutate: func(r *TraceRecord) {}},
		{name: "zero tier is derived later", mutate: func(r *TraceRecord) { r.Tier = 0 }},
		{name: "missing product", mutate: func(r *TraceRecord) { r.ProductID = " " }, wantErr: ErrInvalidProduct, wantField: "product_id"},
		{name: "short material name", mutate: func(r *TraceRecord) { r.MaterialName = "A" }, wantErr: ErrInvalidName, wantField: "material_name"},
		{name: "unknown material type", mutate: func(r *TraceRecord) { r.MaterialType = "Liquid" }, wantErr: ErrInvalidMaterialType, wantField: "material_type"},
		{name: "unknown unit", mutate: func(r *TraceRecord) { r.QuantityUnit = "lb" }, wantErr: ErrInvalidUnit, wantField: "quantity_unit"},
		{name: "negative quantity", mutate: func(r *TraceRecord) { r.Quantity = -1 }, wantErr: ErrInvalidQuantity, wantField: "quantity"},
		{name: "percent above 100", mutate: func(r *TraceRecord) { r.QuantityUnit = UnitPercent; r.Quantity = 101 }, wantErr: ErrInvalidQuantity, wantField: "quantity"},
		{name: "percent at 100", mutate: func(r *TraceRecord) { r.QuantityUnit = UnitPercent; r.Quantity = 100 }},
		{name: "negative tier", mutate: func(r *TraceRecord) { r.Tier = -2 }, wantErr: ErrInvalidTier, wantField: "tier"},
		{name: "lower-case country", mutate: func(r *TraceRecord) { r.OriginCountry = "de" }, wantErr: ErrInvalidCountry, wantField: "origin_country"},
		{name: "three letter country", mutate: func(r *TraceRecord) { r.OriginCountry = "DEU" }, wantErr: ErrInvalidCountry, wantField: "origin_country"},
		{name: "unknown status", mutate: func(r *TraceRecord) { r.ComplianceStatus = "Approved" }, wantErr: ErrInvalidStatus, wantField: "compliance_status"},
		{name: "self parent", mutate: func(r *TraceRecord) { r.ParentTraceID = r.TraceID }, wantErr: ErrCycle, wantField: "parent_trace_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestTraceRecordIsRoot(t *testing.T) {
	r := validRecord()
	assert.True(t, r.IsRoot())
	r.ParentTraceID = "t-0"
	assert.False(t, r.IsRoot())
}

func TestSupplierValidate(t *testing.T) {
	ok := Supplier{Name: "Acme Metals", ContactEmail: "ops@acme.example", Country: "SE"}
	assert.NoError(t, ok.Validate())

	noEmail := Supplier{Name: "Acme Metals"}
	assert.NoError(t, noEmail.Validate())

	bad := Supplier{Name: "X"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidName)

	bad = Supplier{Name: "Acme", ContactEmail: "not-an-email"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidEmail)

	bad = Supplier{Name: "Acme", Country: "Sweden"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCountry)
}
