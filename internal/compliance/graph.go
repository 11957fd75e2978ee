package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/passport/internal/trace"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// checkGraph enforces the parent, tier and cycle rules for rec. old is the
// stored version on update and nil on create. A zero tier is derived.
func (s *Service) checkGraph(ctx context.Context, rec *types.TraceRecord, old *types.TraceRecord) error {
	repo := s.store.Traces()

	expected := 1
	if rec.ParentTraceID != "" {
		parent, err := repo.Get(ctx, rec.ParentTraceID)
		if errors.Is(err, types.ErrNotFound) {
			return &types.ValidationError{Field: "parent_trace_id", Err: types.ErrDanglingParent}
		}
		if err != nil {
			return fmt.Errorf("get parent record: %w", err)
		}
		if parent.ProductID != rec.ProductID {
			return &types.ValidationError{Field: "parent_trace_id", Err: types.ErrProductMismatch}
		}
		expected = parent.Tier + 1
	}

	if old != nil {
		records, err := repo.ListByProduct(ctx, old.ProductID)
		if err != nil {
			return fmt.Errorf("list trace records: %w", err)
		}
		if rec.ParentTraceID != "" && trace.IsAncestor(records, rec.TraceID, rec.ParentTraceID) {
			return &types.ValidationError{Field: "parent_trace_id", Err: types.ErrCycle}
		}
		if rec.ProductID != old.ProductID && len(childrenOf(records, rec.TraceID)) > 0 {
			return &types.ValidationError{Field: "product_id", Err: types.ErrProductMismatch}
		}
		if rec.Tier == old.Tier && rec.ParentTraceID != old.ParentTraceID {
			rec.Tier = 0
		}
	}

	switch {
	case rec.Tier == 0:
		rec.Tier = expected
	case rec.Tier != expected:
		return &types.ValidationError{
			Field: "tier",
			Err:   fmt.Errorf("%w: got %d, want %d", types.ErrTierMismatch, rec.Tier, expected),
		}
	}
	return nil
}

func (s *Service) checkSupplier(ctx context.Context, supplierID string) error {
	if supplierID == "" {
		return nil
	}
	_, err := s.store.Suppliers().Get(ctx, supplierID)
	if errors.Is(err, types.ErrNotFound) {
		return &types.ValidationError{Field: "supplier_id", Err: types.ErrUnknownSupplier}
	}
	if err != nil {
		return fmt.Errorf("get supplier: %w", err)
	}
	return nil
}

// retierSubtree sets every descendant's tier to its parent's tier + 1 after
// root has moved.
func (s *Service) retierSubtree(ctx context.Context, root types.TraceRecord) error {
	repo := s.store.Traces()
	records, err := repo.ListByProduct(ctx, root.ProductID)
	if err != nil {
		return fmt.Errorf("list trace records: %w", err)
	}
	byParent := make(map[string][]types.TraceRecord)
	for _, r := range records {
		byParent[r.ParentTraceID] = append(byParent[r.ParentTraceID], r)
	}
	type item struct {
		id   string
		tier int
	}
	seen := map[string]bool{root.TraceID: true}
	queue := []item{{root.TraceID, root.Tier}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range byParent[cur.id] {
			if seen[child.TraceID] {
				continue
			}
			seen[child.TraceID] = true
			if child.Tier != cur.tier+1 {
				child.Tier = cur.tier + 1
				if _, err := repo.Update(ctx, child); err != nil {
					return fmt.Errorf("re-tier %s: %w", child.TraceID, err)
				}
			}
			queue = append(queue, item{child.TraceID, child.Tier})
		}
	}
	return nil
}

func childrenOf(records []types.TraceRecord, id string) []string {
	var out []string
	for _, r := range records {
		if r.ParentTraceID == id {
			out = append(out, r.TraceID)
		}
	}
	return out
}

// descendants returns every record below id, deepest first. The walk keeps a
// seen set so that stored cycles cannot loop it.
func descendants(records []types.TraceRecord, id string) []string {
	byParent := make(map[string][]string)
	for _, r := range records {
		byParent[r.ParentTraceID] = append(byParent[r.ParentTraceID], r.TraceID)
	}
	seen := map[string]bool{id: true}
	var order []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range byParent[cur] {
			if seen[c] {
				continue
			}
			seen[c] = true
			order = append(order, c)
			queue = append(queue, c)
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
