package types

import (
	"strings"
	"time"
)

// MaterialType classifies the material a trace record describes.
type MaterialType string

// Material types.
const (
	MaterialRaw          MaterialType = "Raw"
	MaterialSubcomponent MaterialType = "Subcomponent"
	MaterialAssembly     MaterialType = "Assembly"
	MaterialAdditive     MaterialType = "Additive"
)

// validMaterialTypes is the set of recognized material types.
var validMaterialTypes = map[MaterialType]bool{
	MaterialRaw:          true,
	MaterialSubcomponent: true,
	MaterialAssembly:     true,
	MaterialAdditive:     true,
}

// Valid reports whether m is a recognized material type.
func (m MaterialType) Valid() bool { return validMaterialTypes[m] }

// QuantityUnit is the unit of TraceRecord.Quantity.
type QuantityUnit string

// Quantity units.
const (
	UnitKilogram QuantityUnit = "kg"
	UnitPercent  QuantityUnit = "%"
)

// Valid reports whether u is a recognized quantity unit.
func (u QuantityUnit) Valid() bool { return u == UnitKilogram || u == UnitPercent }

// TraceRecord is one node in a product's bill-of-materials tree: a material
// or component with its supplier, origin and compliance metadata. An empty
// ParentTraceID marks a root.
type TraceRecord struct {
	TraceID          string           `json:"trace_id" yaml:"trace_id"`
	ProductID        string           `json:"product_id" yaml:"product_id"`
	MaterialID       string           `json:"material_id" yaml:"material_id"`
	MaterialName     string           `json:"material_name" yaml:"material_name"`
	MaterialType     MaterialType     `json:"material_type" yaml:"material_type"`
	ParentTraceID    string           `json:"parent_trace_id,omitempty" yaml:"parent_trace_id,omitempty"`
	Quantity         float64          `json:"quantity" yaml:"quantity"`
	QuantityUnit     QuantityUnit     `json:"quantity_unit" yaml:"quantity_unit"`
	Tier             int              `json:"tier" yaml:"tier"`
	SupplierID       string           `json:"supplier_id,omitempty" yaml:"supplier_id,omitempty"`
	OriginCountry    string           `json:"origin_country" yaml:"origin_country"`
	ComplianceStatus ComplianceStatus `json:"compliance_status" yaml:"compliance_status"`
	ConflictMinerals bool             `json:"conflict_minerals_flag" yaml:"conflict_minerals_flag"`
	IsRecycled       bool             `json:"is_recycled_material" yaml:"is_recycled_material"`
	CreatedAt        time.Time        `json:"created_at" yaml:"-"`
	LastUpdatedAt    time.Time        `json:"last_updated_at" yaml:"-"`
}

// IsRoot reports whether the record has no parent.
func (r *TraceRecord) IsRoot() bool { return r.ParentTraceID == "" }

// Validate checks the field-level rules for a record. Graph rules (parent
// existence, tier, cycles) need the rest of the collection and are checked by
// the compliance service. A zero Tier is accepted here; the service derives it.
func (r *TraceRecord) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return fieldError("product_id", ErrInvalidProduct)
	}
	if len(strings.TrimSpace(r.MaterialName)) < 2 {
		return fieldError("material_name", ErrInvalidName)
	}
	if !r.MaterialType.Valid() {
		return fieldError("material_type", ErrInvalidMaterialType)
	}
	if !r.QuantityUnit.Valid() {
		return fieldError("quantity_unit", ErrInvalidUnit)
	}
	if r.Quantity < 0 || (r.QuantityUnit == UnitPercent && r.Quantity > 100) {
		return fieldError("quantity", ErrInvalidQuantity)
	}
	if r.Tier < 0 {
		return fieldError("tier", ErrInvalidTier)
	}
	if !ValidCountryCode(r.OriginCountry) {
		return fieldError("origin_country", ErrInvalidCountry)
	}
	if !r.ComplianceStatus.Valid() {
		return fieldError("compliance_status", ErrInvalidStatus)
	}
	if r.ParentTraceID != "" && r.ParentTraceID == r.TraceID {
		return fieldError("parent_trace_id", ErrCycle)
	}
	return nil
}

// SetStatus moves the record to the given compliance status if the
// transitions table allows it. Setting the current status again succeeds and
// only refreshes LastUpdatedAt.
func (r *TraceRecord) SetStatus(to ComplianceStatus) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	if !CanTransition(r.ComplianceStatus, to) {
		return ErrInvalidTransition
	}
	r.ComplianceStatus = to
	r.LastUpdatedAt = time.Now().UTC()
	return nil
}

// ValidCountryCode reports whether code looks like an ISO 3166-1 alpha-2 code:
// two upper-case ASCII letters.
func ValidCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
