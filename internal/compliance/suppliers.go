package compliance

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/trace"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// AddSupplier validates and stores a supplier.
func (s *Service) AddSupplier(ctx context.Context, sup types.Supplier) (types.Supplier, error) {
	if err := sup.Validate(); err != nil {
		return types.Supplier{}, err
	}
	created, err := s.store.Suppliers().Create(ctx, sup)
	if err != nil {
		return types.Supplier{}, fmt.Errorf("create supplier: %w", err)
	}
	s.logger.Info("supplier added", zap.String("supplier_id", created.SupplierID), zap.String("name", created.Name))
	return created, nil
}

// ListSuppliers returns every supplier ordered by name.
func (s *Service) ListSuppliers(ctx context.Context) ([]types.Supplier, error) {
	return s.store.Suppliers().List(ctx)
}

// Report describes the structural health of a product's records.
type Report struct {
	ProductID      string   `json:"product_id"`
	Records        int      `json:"records"`
	Dangling       []string `json:"dangling,omitempty"`
	TierMismatches []string `json:"tier_mismatches,omitempty"`
	Cycle          []string `json:"cycle,omitempty"`
}

// OK reports whether no problem was found.
func (r Report) OK() bool {
	return len(r.Dangling) == 0 && len(r.TierMismatches) == 0 && len(r.Cycle) == 0
}

// Check inspects the stored records of a product for dangling parents, tier
// mismatches and cycles. Records written through the service never have
// these problems; records loaded from hand-edited files may.
func (s *Service) Check(ctx context.Context, productID string) (Report, error) {
	records, err := s.store.Traces().ListByProduct(ctx, productID)
	if err != nil {
		return Report{}, fmt.Errorf("list trace records: %w", err)
	}
	report := Report{ProductID: productID, Records: len(records)}

	f, err := trace.Build(records, productID)
	var cerr *trace.CycleError
	if errors.As(err, &cerr) {
		report.Cycle = cerr.IDs
		return report, nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("build tree: %w", err)
	}
	for _, n := range f.Dangling {
		report.Dangling = append(report.Dangling, n.ID())
	}
	for _, r := range f.TierMismatches() {
		report.TierMismatches = append(report.TierMismatches, r.TraceID)
	}
	return report, nil
}
