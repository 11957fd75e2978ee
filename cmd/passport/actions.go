package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/passport/internal/actions"
	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/flows"
	"github.com/mesh-intelligence/passport/pkg/types"
)

// mailer returns the SendGrid client when a key is configured and nil
// otherwise, which makes the action service log messages instead.
func (a *app) mailer() (actions.Mailer, error) {
	if a.cfg.SendGrid.APIKey == "" {
		return nil, nil
	}
	sg, err := actions.NewSendGrid(actions.SendGridConfig{
		APIKey:    a.cfg.SendGrid.APIKey,
		BaseURL:   a.cfg.SendGrid.BaseURL,
		FromEmail: a.cfg.SendGrid.FromEmail,
		FromName:  a.cfg.SendGrid.FromName,
		Timeout:   a.cfg.ActionTimeout,
	})
	if err != nil {
		return nil, userError(fmt.Errorf("config: sendgrid: %w", err))
	}
	return sg, nil
}

// checker returns the model-backed checker with the rule checker as
// fallback, or the rule checker alone when no Anthropic key is configured.
func (a *app) checker() (flows.ComplianceChecker, error) {
	ai, err := flows.NewAnthropic(flows.AnthropicConfig{
		APIKey:    a.cfg.Anthropic.APIKey,
		Model:     a.cfg.Anthropic.Model,
		MaxTokens: a.cfg.Anthropic.MaxTokens,
		Timeout:   a.cfg.ActionTimeout,
	})
	if errors.Is(err, flows.ErrNoAPIKey) {
		a.logger.Debug("no anthropic key configured, using rule-based compliance checks")
		return flows.Rules{}, nil
	}
	if err != nil {
		return nil, err
	}
	return flows.Fallback{Primary: ai, Secondary: flows.Rules{}, Logger: a.logger}, nil
}

func (a *app) actionService(store types.Store) (*actions.Service, error) {
	mailer, err := a.mailer()
	if err != nil {
		return nil, err
	}
	checker, err := a.checker()
	if err != nil {
		return nil, err
	}
	return actions.New(store, mailer, checker, a.logger, actions.Config{
		PublicBaseURL: a.cfg.PublicBaseURL,
		Timeout:       a.cfg.ActionTimeout,
	}), nil
}

// withActions is withService plus an action service over the same store.
func (a *app) withActions(ctx context.Context, fn func(ctx context.Context, acts *actions.Service) error) error {
	return a.withService(ctx, func(ctx context.Context, _ *compliance.Service, store types.Store) error {
		acts, err := a.actionService(store)
		if err != nil {
			return err
		}
		return fn(ctx, acts)
	})
}

// printResult writes an action result. A failed result becomes the
// command's error after it is printed in JSON mode.
func printResult[T any](a *app, w io.Writer, action string, res actions.Result[T], text func(data *T)) error {
	if a.jsonOut {
		if err := printJSON(w, res); err != nil {
			return err
		}
	} else if res.Success {
		text(res.Data)
	}
	if !res.Success {
		return fmt.Errorf("%s: %w", action, res.Err())
	}
	return nil
}

func newQRCmd(a *app) *cobra.Command {
	var versionID string
	cmd := &cobra.Command{
		Use:   "qr <product-id>",
		Short: "Issue a QR code for a product version",
		Long: `QR issues a QR code record for one version of a product. The code links to
the public passport view under public_base_url.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withActions(cmd.Context(), func(ctx context.Context, acts *actions.Service) error {
				res := acts.GenerateQRCode(ctx, actions.QRInput{ProductID: args[0], VersionID: versionID})
				return printResult(a, cmd.OutOrStdout(), "generate QR code", res, func(q *types.QRCodeLog) {
					fmt.Fprintf(cmd.OutOrStdout(), "QR code %s\n  url: %s\n", q.QRID, q.URL)
				})
			})
		},
	}
	cmd.Flags().StringVar(&versionID, "version", "", "product version (required)")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newEmailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "email <address>",
		Short: "Send a test email",
		Long:  "Email sends a test message through the configured mail provider to check the mail setup.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withActions(cmd.Context(), func(ctx context.Context, acts *actions.Service) error {
				res := acts.SendTestEmail(ctx, actions.EmailInput{Email: args[0]})
				return printResult(a, cmd.OutOrStdout(), "send test email", res, func(*struct{}) {
					fmt.Fprintf(cmd.OutOrStdout(), "Test email sent to %s\n", args[0])
				})
			})
		},
	}
}

func newAssessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assess <product-id>",
		Short: "Assess the compliance of a product",
		Long: `Assess reviews every trace record of a product and reports a score from 0
to 100 with findings. It asks an Anthropic model when anthropic.api_key is
set and falls back to rule-based checks otherwise or on failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withActions(cmd.Context(), func(ctx context.Context, acts *actions.Service) error {
				res := acts.CheckCompliance(ctx, args[0])
				return printResult(a, cmd.OutOrStdout(), "compliance check", res, func(out *flows.CheckOutput) {
					printAssessment(cmd.OutOrStdout(), out)
				})
			})
		},
	}
}

func printAssessment(w io.Writer, out *flows.CheckOutput) {
	fmt.Fprintf(w, "Product %s: score %d/100 (%s)\n", out.ProductID, out.Score, out.Source)
	if out.Summary != "" {
		fmt.Fprintln(w, out.Summary)
	}
	if len(out.Findings) == 0 {
		return
	}
	rows := make([][]string, 0, len(out.Findings))
	for _, f := range out.Findings {
		id := f.TraceID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{string(f.Severity), id, f.Message})
	}
	_ = printTable(w, []string{"SEVERITY", "RECORD", "FINDING"}, rows)
}
