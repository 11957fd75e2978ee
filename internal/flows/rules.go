package flows

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// Penalties applied by Rules per finding.
const (
	penaltyCritical = 25
	penaltyWarning  = 10
	penaltyInfo     = 2
)

// Rules is the deterministic checker. It needs no network and is the
// fallback when the model is unavailable.
type Rules struct{}

// CheckCompliance implements ComplianceChecker.
func (Rules) CheckCompliance(ctx context.Context, in CheckInput) (CheckOutput, error) {
	if err := ctx.Err(); err != nil {
		return CheckOutput{}, err
	}
	if len(in.Records) == 0 {
		return CheckOutput{}, ErrNoRecords
	}

	var findings []Finding
	verified, recycled := 0, 0
	for _, r := range in.Records {
		switch r.ComplianceStatus {
		case types.StatusRejected:
			findings = append(findings, Finding{r.TraceID, SeverityCritical, fmt.Sprintf("%s was rejected", r.MaterialName)})
		case types.StatusPending:
			findings = append(findings, Finding{r.TraceID, SeverityWarning, fmt.Sprintf("%s awaits verification", r.MaterialName)})
		case types.StatusInvited:
			findings = append(findings, Finding{r.TraceID, SeverityWarning, fmt.Sprintf("supplier data for %s not yet submitted", r.MaterialName)})
		case types.StatusVerified:
			verified++
		}
		if r.ConflictMinerals {
			findings = append(findings, Finding{r.TraceID, SeverityCritical, fmt.Sprintf("%s is flagged for conflict minerals", r.MaterialName)})
		}
		if r.SupplierID == "" {
			findings = append(findings, Finding{r.TraceID, SeverityInfo, fmt.Sprintf("%s has no supplier", r.MaterialName)})
		}
		if r.IsRecycled {
			recycled++
		}
	}

	score := 100
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			score -= penaltyCritical
		case SeverityWarning:
			score -= penaltyWarning
		default:
			score -= penaltyInfo
		}
	}
	if score < 0 {
		score = 0
	}

	return CheckOutput{
		ProductID: in.ProductID,
		Score:     score,
		Summary: fmt.Sprintf("%d of %d materials verified, %d recycled, %d findings",
			verified, len(in.Records), recycled, len(findings)),
		Findings: findings,
		Source:   "rules",
	}, nil
}
