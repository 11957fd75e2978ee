// Package actions implements the request/response operations exposed to
// clients besides plain CRUD: issuing QR codes, sending a test email and
// running a compliance check. Every action returns a Result; failures are
// logged and reported in Result.Error rather than returned as Go errors.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/flows"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// Result is the envelope every action returns.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Err returns the failure as an error, or nil on success.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}

func succeed[T any](v T) Result[T] { return Result[T]{Success: true, Data: &v} }

func fail[T any](err error) Result[T] { return Result[T]{Error: err.Error()} }

// QRInput identifies the product version a QR code is issued for.
type QRInput struct {
	ProductID string `json:"productId"`
	VersionID string `json:"versionId"`
}

// EmailInput is the recipient of a test email.
type EmailInput struct {
	Email string `json:"email"`
}

// Config configures a Service.
type Config struct {
	// PublicBaseURL prefixes the public passport links embedded in QR codes.
	PublicBaseURL string
	// Timeout bounds each external call (mail provider, compliance model).
	Timeout time.Duration
}

// Service runs actions against a store.
type Service struct {
	store   types.Store
	mailer  Mailer
	checker flows.ComplianceChecker
	logger  *zap.Logger
	cfg     Config
}

// New returns a Service. A nil mailer logs instead of sending; a nil checker
// uses the rule-based checker.
func New(store types.Store, mailer Mailer, checker flows.ComplianceChecker, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	if checker == nil {
		checker = flows.Rules{}
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:8080"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Service{store: store, mailer: mailer, checker: checker, logger: logger, cfg: cfg}
}

// PublicURL returns the public passport link of a product version.
func (s *Service) PublicURL(productID, versionID string) string {
	u := s.cfg.PublicBaseURL + "/public/products/" + url.PathEscape(productID)
	if versionID != "" {
		u += "?version=" + url.QueryEscape(versionID)
	}
	return u
}

// GenerateQRCode records a QR code for a product version and returns its log
// entry. The product must have at least one trace record.
func (s *Service) GenerateQRCode(ctx context.Context, in QRInput) Result[types.QRCodeLog] {
	productID := strings.TrimSpace(in.ProductID)
	versionID := strings.TrimSpace(in.VersionID)
	if productID == "" {
		return failed[types.QRCodeLog](s, "generate qr code", &types.ValidationError{Field: "productId", Err: types.ErrInvalidProduct})
	}
	if versionID == "" {
		return failed[types.QRCodeLog](s, "generate qr code", &types.ValidationError{Field: "versionId", Err: types.ErrInvalidID})
	}

	records, err := s.store.Traces().ListByProduct(ctx, productID)
	if err != nil {
		return failed[types.QRCodeLog](s, "generate qr code", fmt.Errorf("list trace records: %w", err))
	}
	if len(records) == 0 {
		return failed[types.QRCodeLog](s, "generate qr code", fmt.Errorf("product %s: %w", productID, types.ErrNotFound))
	}

	entry, err := s.store.QRCodes().Create(ctx, types.QRCodeLog{
		ProductID: productID,
		VersionID: versionID,
		URL:       s.PublicURL(productID, versionID),
	})
	if err != nil {
		return failed[types.QRCodeLog](s, "generate qr code", fmt.Errorf("create qr code: %w", err))
	}
	s.logger.Info("qr code generated",
		zap.String("qr_id", entry.QRID), zap.String("product_id", productID), zap.String("url", entry.URL))
	return succeed(entry)
}

// SendTestEmail sends a fixed message to verify mail delivery.
func (s *Service) SendTestEmail(ctx context.Context, in EmailInput) Result[struct{}] {
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return failed[struct{}](s, "send test email", &types.ValidationError{Field: "email", Err: types.ErrInvalidEmail})
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err = s.mailer.Send(ctx, Message{
		To:      addr.Address,
		Subject: "Passport test email",
		Text:    "This is a test message from your Digital Product Passport service. Mail delivery is working.",
	})
	if err != nil {
		return failed[struct{}](s, "send test email", err)
	}
	s.logger.Info("test email sent", zap.String("to", addr.Address))
	return succeed(struct{}{})
}

// CheckCompliance runs the configured checker over a product's records.
func (s *Service) CheckCompliance(ctx context.Context, productID string) Result[flows.CheckOutput] {
	records, err := s.store.Traces().ListByProduct(ctx, productID)
	if err != nil {
		return failed[flows.CheckOutput](s, "check compliance", fmt.Errorf("list trace records: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	out, err := s.checker.CheckCompliance(ctx, flows.CheckInput{ProductID: productID, Records: records})
	if err != nil {
		return failed[flows.CheckOutput](s, "check compliance", err)
	}
	s.logger.Info("compliance checked",
		zap.String("product_id", productID), zap.Int("score", out.Score), zap.String("source", out.Source))
	return succeed(out)
}

func failed[T any](s *Service, action string, err error) Result[T] {
	s.logger.Warn("action failed", zap.String("action", action), zap.Error(err))
	return fail[T](err)
}

// QRCodes returns the QR codes issued for a product, oldest first.
func (s *Service) QRCodes(ctx context.Context, productID string) ([]types.QRCodeLog, error) {
	return s.store.QRCodes().ListByProduct(ctx, productID)
}
