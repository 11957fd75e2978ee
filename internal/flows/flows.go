// Package flows holds the AI-assisted compliance check. A ComplianceChecker
// reviews the trace records of one product and returns findings; callers
// treat it as opaque and surface its errors as failed action results.
package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// Severity grades a finding.
type Severity string

// Severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// CheckInput is the product under review.
type CheckInput struct {
	ProductID string              `json:"product_id"`
	Records   []types.TraceRecord `json:"records"`
}

// Finding is one observation about a record or the product as a whole.
type Finding struct {
	TraceID  string   `json:"trace_id,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// CheckOutput is the result of a compliance check. Score runs from 0 (no
// confidence) to 100 (fully compliant).
type CheckOutput struct {
	ProductID string    `json:"product_id"`
	Score     int       `json:"score"`
	Summary   string    `json:"summary"`
	Findings  []Finding `json:"findings"`
	Source    string    `json:"source"`
}

// ComplianceChecker reviews a product's trace records.
type ComplianceChecker interface {
	CheckCompliance(ctx context.Context, in CheckInput) (CheckOutput, error)
}

// ErrNoRecords is returned when a check is asked for a product without records.
var ErrNoRecords = errors.New("product has no trace records")

// Fallback runs Primary and, if it fails, Secondary. The primary error is
// logged, not returned.
type Fallback struct {
	Primary   ComplianceChecker
	Secondary ComplianceChecker
	Logger    *zap.Logger
}

// CheckCompliance implements ComplianceChecker.
func (f Fallback) CheckCompliance(ctx context.Context, in CheckInput) (CheckOutput, error) {
	if f.Primary != nil {
		out, err := f.Primary.CheckCompliance(ctx, in)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrNoRecords) || ctx.Err() != nil {
			return CheckOutput{}, err
		}
		if f.Logger != nil {
			f.Logger.Warn("primary compliance check failed, using fallback",
				zap.String("product_id", in.ProductID), zap.Error(err))
		}
	}
	return f.Secondary.CheckCompliance(ctx, in)
}
