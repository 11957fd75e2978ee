// Package compliance implements the write side of trace records: graph rules
// on create, update and delete, status transitions with role checks, and the
// product tree and public passport reads built on top of them.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/trace"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// Service applies the passport rules on top of a Store. Trace writes are
// serialized so that the graph checks see the state they are applied to.
type Service struct {
	mu      sync.Mutex // held across check and write of trace records
	store   types.Store
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the collectors the service reports to.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service over an attached store.
func NewService(store types.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// Get returns one trace record.
func (s *Service) Get(ctx context.Context, traceID string) (types.TraceRecord, error) {
	return s.store.Traces().Get(ctx, traceID)
}

// ListByProduct returns the records of a product in creation order.
func (s *Service) ListByProduct(ctx context.Context, productID string) ([]types.TraceRecord, error) {
	return s.store.Traces().ListByProduct(ctx, productID)
}

// Create validates rec and stores it. An empty status becomes Pending and a
// zero tier is derived from the parent. The actor must be allowed to set the
// initial status.
func (s *Service) Create(ctx context.Context, actor types.Role, rec types.TraceRecord) (types.TraceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ComplianceStatus == "" {
		rec.ComplianceStatus = types.StatusPending
	}
	if err := s.authorize(actor, rec.ComplianceStatus); err != nil {
		return types.TraceRecord{}, s.reject("create", err)
	}
	if err := rec.Validate(); err != nil {
		return types.TraceRecord{}, s.reject("create", err)
	}
	if err := s.checkGraph(ctx, &rec, nil); err != nil {
		return types.TraceRecord{}, s.reject("create", err)
	}
	if err := s.checkSupplier(ctx, rec.SupplierID); err != nil {
		return types.TraceRecord{}, s.reject("create", err)
	}

	created, err := s.store.Traces().Create(ctx, rec)
	if err != nil {
		return types.TraceRecord{}, fmt.Errorf("create trace record: %w", err)
	}
	s.metrics.writes.WithLabelValues("create").Inc()
	s.logger.Info("trace record created",
		zap.String("trace_id", created.TraceID),
		zap.String("product_id", created.ProductID),
		zap.Int("tier", created.Tier),
		zap.String("actor", string(actor)),
	)
	return created, nil
}

// Update replaces a record. Moving it under a new parent re-tiers its whole
// subtree. A status change goes through the same checks as TransitionStatus.
func (s *Service) Update(ctx context.Context, actor types.Role, rec types.TraceRecord) (types.TraceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.store.Traces()
	old, err := repo.Get(ctx, rec.TraceID)
	if err != nil {
		return types.TraceRecord{}, fmt.Errorf("get trace record: %w", err)
	}
	if rec.ComplianceStatus == "" {
		rec.ComplianceStatus = old.ComplianceStatus
	}
	statusChanged := rec.ComplianceStatus != old.ComplianceStatus
	if statusChanged {
		if err := s.checkTransition(actor, old.ComplianceStatus, rec.ComplianceStatus); err != nil {
			return types.TraceRecord{}, s.reject("update", err)
		}
	}
	if err := rec.Validate(); err != nil {
		return types.TraceRecord{}, s.reject("update", err)
	}
	if err := s.checkGraph(ctx, &rec, &old); err != nil {
		return types.TraceRecord{}, s.reject("update", err)
	}
	if err := s.checkSupplier(ctx, rec.SupplierID); err != nil {
		return types.TraceRecord{}, s.reject("update", err)
	}

	updated, err := repo.Update(ctx, rec)
	if err != nil {
		return types.TraceRecord{}, fmt.Errorf("update trace record: %w", err)
	}
	if updated.Tier != old.Tier {
		if err := s.retierSubtree(ctx, updated); err != nil {
			return updated, err
		}
	}
	if statusChanged {
		if err := s.recordChange(ctx, updated.TraceID, old.ComplianceStatus, updated.ComplianceStatus, actor, "updated"); err != nil {
			return updated, err
		}
	}
	s.metrics.writes.WithLabelValues("update").Inc()
	s.logger.Info("trace record updated",
		zap.String("trace_id", updated.TraceID),
		zap.String("actor", string(actor)),
	)
	return updated, nil
}

// Delete removes a record. A record with children is only removed when
// cascade is set, in which case its whole subtree goes too, deepest first.
// It returns the IDs removed.
func (s *Service) Delete(ctx context.Context, traceID string, cascade bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.store.Traces()
	rec, err := repo.Get(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("get trace record: %w", err)
	}
	records, err := repo.ListByProduct(ctx, rec.ProductID)
	if err != nil {
		return nil, fmt.Errorf("list trace records: %w", err)
	}
	below := descendants(records, traceID)
	if len(below) > 0 && !cascade {
		return nil, s.reject("delete", fmt.Errorf("%w: %d direct or indirect", types.ErrHasChildren, len(below)))
	}

	removed := make([]string, 0, len(below)+1)
	for _, id := range append(below, traceID) {
		if err := repo.Delete(ctx, id); err != nil && !errors.Is(err, types.ErrNotFound) {
			return removed, fmt.Errorf("delete trace record %s: %w", id, err)
		}
		removed = append(removed, id)
	}
	s.metrics.writes.WithLabelValues("delete").Add(float64(len(removed)))
	s.logger.Info("trace records deleted",
		zap.String("trace_id", traceID),
		zap.Int("count", len(removed)),
		zap.Bool("cascade", cascade),
	)
	return removed, nil
}

// TransitionStatus moves a record to a new compliance status. The move must
// be in the transitions table and allowed for the actor's role. Setting the
// current status again only refreshes last_updated_at.
func (s *Service) TransitionStatus(ctx context.Context, traceID string, to types.ComplianceStatus, actor types.Role, note string) (types.TraceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.store.Traces()
	rec, err := repo.Get(ctx, traceID)
	if err != nil {
		return types.TraceRecord{}, fmt.Errorf("get trace record: %w", err)
	}
	from := rec.ComplianceStatus
	if err := s.checkTransition(actor, from, to); err != nil {
		return types.TraceRecord{}, s.reject("transition", err)
	}
	if err := rec.SetStatus(to); err != nil {
		return types.TraceRecord{}, s.reject("transition", err)
	}
	updated, err := repo.Update(ctx, rec)
	if err != nil {
		return types.TraceRecord{}, fmt.Errorf("update trace record: %w", err)
	}
	if from != to {
		if err := s.recordChange(ctx, traceID, from, to, actor, note); err != nil {
			return updated, err
		}
	}
	s.metrics.transitions.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info("compliance status changed",
		zap.String("trace_id", traceID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", string(actor)),
	)
	return updated, nil
}

// History returns the status changes of a record, oldest first.
func (s *Service) History(ctx context.Context, traceID string) ([]types.StatusChange, error) {
	return s.store.History().ListByTrace(ctx, traceID)
}

// Tree materializes the product's records.
func (s *Service) Tree(ctx context.Context, productID string) (*trace.Forest, error) {
	records, err := s.store.Traces().ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list trace records: %w", err)
	}
	start := time.Now()
	f, err := trace.Build(records, productID)
	s.metrics.buildTime.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("product tree is malformed", zap.String("product_id", productID), zap.Error(err))
		return nil, fmt.Errorf("build tree: %w", err)
	}
	return f, nil
}

// Public returns the public passport projection of a product. A product with
// no records yields ErrNotFound.
func (s *Service) Public(ctx context.Context, productID string) (types.PublicDppData, error) {
	f, err := s.Tree(ctx, productID)
	if err != nil {
		return types.PublicDppData{}, err
	}
	if f.Len() == 0 {
		return types.PublicDppData{}, fmt.Errorf("product %s: %w", productID, types.ErrNotFound)
	}
	return trace.Public(f, s.now()), nil
}

func (s *Service) authorize(actor types.Role, to types.ComplianceStatus) error {
	if _, err := types.ParseRole(string(actor)); err != nil {
		return err
	}
	if !actor.MayTransitionTo(to) {
		return fmt.Errorf("%w: %s may not set %s", types.ErrForbidden, actor, to)
	}
	return nil
}

func (s *Service) checkTransition(actor types.Role, from, to types.ComplianceStatus) error {
	if _, err := types.ParseRole(string(actor)); err != nil {
		return err
	}
	if !to.Valid() {
		return types.ErrInvalidStatus
	}
	if !types.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	if from == to {
		return nil
	}
	return s.authorize(actor, to)
}

func (s *Service) recordChange(ctx context.Context, traceID string, from, to types.ComplianceStatus, actor types.Role, note string) error {
	_, err := s.store.History().Append(ctx, types.StatusChange{
		TraceID:   traceID,
		From:      from,
		To:        to,
		Actor:     actor,
		Note:      note,
		ChangedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("append status change: %w", err)
	}
	return nil
}

// reject counts a rejected write and passes err through.
func (s *Service) reject(op string, err error) error {
	s.metrics.rejections.WithLabelValues(reason(err)).Inc()
	s.logger.Debug("trace write rejected", zap.String("op", op), zap.Error(err))
	return err
}

func reason(err error) string {
	var verr *types.ValidationError
	switch {
	case errors.Is(err, types.ErrDanglingParent), errors.Is(err, types.ErrProductMismatch):
		return "parent"
	case errors.Is(err, types.ErrTierMismatch):
		return "tier"
	case errors.Is(err, types.ErrCycle):
		return "cycle"
	case errors.Is(err, types.ErrHasChildren):
		return "has_children"
	case errors.Is(err, types.ErrForbidden), errors.Is(err, types.ErrInvalidRole):
		return "forbidden"
	case errors.Is(err, types.ErrInvalidTransition):
		return "transition"
	case errors.As(err, &verr):
		return "validation"
	}
	return "other"
}
